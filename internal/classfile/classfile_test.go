package classfile

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
)

// listing renders an instruction list with labels numbered by first
// appearance, so two trees can be compared structurally.
func listing(insns []Insn) []string {
	ids := map[*Label]int{}
	id := func(l *Label) string {
		if _, ok := ids[l]; !ok {
			ids[l] = len(ids)
		}
		return fmt.Sprintf("L%d", ids[l])
	}
	var out []string
	for _, in := range insns {
		switch in := in.(type) {
		case *Label:
			out = append(out, id(in)+":")
		case *LineNumber:
			out = append(out, fmt.Sprintf("LINE %d %s", in.Line, id(in.Start)))
		case *JumpInsn:
			out = append(out, OpName(in.Opcode)+" "+id(in.Target))
		case *TableSwitchInsn:
			var ls []string
			for _, l := range in.Labels {
				ls = append(ls, id(l))
			}
			out = append(out, fmt.Sprintf("TABLESWITCH %d:%d %v %s", in.Min, in.Max, ls, id(in.Default)))
		case *LookupSwitchInsn:
			var ls []string
			for i, l := range in.Labels {
				ls = append(ls, fmt.Sprintf("%d=%s", in.Keys[i], id(l)))
			}
			out = append(out, fmt.Sprintf("LOOKUPSWITCH %v %s", ls, id(in.Default)))
		default:
			out = append(out, fmt.Sprintf("%s %+v", OpName(in.Op()), in))
		}
	}
	return out
}

func sampleClass() *Class {
	loop, done, handler, end := &Label{}, &Label{}, &Label{}, &Label{}
	c1, c2, dflt := &Label{}, &Label{}, &Label{}
	return &Class{
		Version:    52,
		Access:     AccPublic | AccSuper,
		Name:       "demo/Sample",
		SuperName:  "java/lang/Object",
		Interfaces: []string{"java/lang/Runnable"},
		SourceFile: Str("Sample.java"),
		Fields: []*Field{
			{Access: AccStatic | AccFinal, Name: "LIMIT", Desc: "I", Value: int32(10)},
			{Access: AccPrivate, Name: "name", Desc: "Ljava/lang/String;", Signature: Str("Ljava/lang/String;")},
		},
		Methods: []*Method{
			{
				Access: AccPublic,
				Name:   "<init>",
				Desc:   "()V",
				Insns: []Insn{
					&VarInsn{Opcode: ALOAD, Var: 0},
					&MethodInsn{Opcode: INVOKESPECIAL, Owner: "java/lang/Object", Name: "<init>", Desc: "()V"},
					&SimpleInsn{Opcode: RETURN},
				},
			},
			{
				Access: AccPublic,
				Name:   "run",
				Desc:   "()V",
				Insns: []Insn{
					&SimpleInsn{Opcode: ICONST_0},
					&VarInsn{Opcode: ISTORE, Var: 1},
					loop,
					&VarInsn{Opcode: ILOAD, Var: 1},
					&FieldInsn{Opcode: GETSTATIC, Owner: "demo/Sample", Name: "LIMIT", Desc: "I"},
					&JumpInsn{Opcode: IF_ICMPGE, Target: done},
					&IincInsn{Var: 1, Incr: 1},
					&JumpInsn{Opcode: GOTO, Target: loop},
					done,
					&LdcInsn{Value: "hello"},
					&LdcInsn{Value: int64(1) << 40},
					&SimpleInsn{Opcode: POP2},
					&SimpleInsn{Opcode: POP},
					&LdcInsn{Value: ObjectType("java/lang/String")},
					&SimpleInsn{Opcode: POP},
					&InvokeDynamicInsn{
						Name: "run",
						Desc: "()Ljava/lang/Runnable;",
						Bsm: Handle{Kind: H_INVOKESTATIC, Owner: "java/lang/invoke/LambdaMetafactory", Name: "metafactory",
							Desc: "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"},
						BsmArgs: []any{
							Type{Desc: "()V"},
							Handle{Kind: H_INVOKESTATIC, Owner: "demo/Sample", Name: "lambda$0", Desc: "()V"},
							Type{Desc: "()V"},
						},
					},
					&MethodInsn{Opcode: INVOKEINTERFACE, Owner: "java/lang/Runnable", Name: "run", Desc: "()V", Itf: true},
					end,
					&VarInsn{Opcode: ILOAD, Var: 1},
					&TableSwitchInsn{Min: 1, Max: 2, Default: dflt, Labels: []*Label{c1, c2}},
					c1,
					&SimpleInsn{Opcode: RETURN},
					c2,
					&SimpleInsn{Opcode: RETURN},
					dflt,
					&SimpleInsn{Opcode: RETURN},
					handler,
					&VarInsn{Opcode: ASTORE, Var: 2},
					&SimpleInsn{Opcode: RETURN},
				},
				TryCatch: []TryCatch{{Start: done, End: end, Handler: handler, Type: "java/lang/RuntimeException"}},
			},
			{
				Access: AccPrivate | AccStatic | AccSynthetic,
				Name:   "lambda$0",
				Desc:   "()V",
				Insns:  []Insn{&SimpleInsn{Opcode: RETURN}},
			},
		},
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	c := sampleClass()
	data, err := Write(c, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !IsClassFile(data) {
		t.Fatalf("written bytes lack the class magic")
	}
	got, err := Parse(data, ReadOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Name != c.Name || got.SuperName != c.SuperName || got.Version != c.Version {
		t.Errorf("header: got %s/%s/%d, want %s/%s/%d", got.Name, got.SuperName, got.Version, c.Name, c.SuperName, c.Version)
	}
	if !reflect.DeepEqual(got.Interfaces, c.Interfaces) {
		t.Errorf("interfaces: got %v, want %v", got.Interfaces, c.Interfaces)
	}
	if got.SourceFile == nil || *got.SourceFile != "Sample.java" {
		t.Errorf("source file: got %v", got.SourceFile)
	}
	if len(got.Fields) != 2 || got.Fields[0].Value != int32(10) {
		t.Fatalf("fields: got %+v", got.Fields)
	}
	if got.Fields[1].Signature == nil || *got.Fields[1].Signature != "Ljava/lang/String;" {
		t.Errorf("field signature lost")
	}
	if len(got.Methods) != len(c.Methods) {
		t.Fatalf("got %d methods, want %d", len(got.Methods), len(c.Methods))
	}
	for i, m := range c.Methods {
		want := listing(m.Insns)
		have := listing(got.Methods[i].Insns)
		if strings.Join(have, "\n") != strings.Join(want, "\n") {
			t.Errorf("%s: instructions differ\ngot:\n%s\nwant:\n%s", m.Name, strings.Join(have, "\n"), strings.Join(want, "\n"))
		}
	}
	run := got.Methods[1]
	if len(run.TryCatch) != 1 || run.TryCatch[0].Type != "java/lang/RuntimeException" {
		t.Errorf("try/catch: got %+v", run.TryCatch)
	}
	if run.MaxLocals != 3 {
		t.Errorf("max locals: got %d, want 3", run.MaxLocals)
	}
	if run.MaxStack != 3 {
		t.Errorf("max stack: got %d, want 3", run.MaxStack)
	}
}

func TestMergeCalledAtJoin(t *testing.T) {
	other, join := &Label{}, &Label{}
	m := &Method{
		Access: AccStatic,
		Name:   "pick",
		Desc:   "(I)Ljava/lang/Object;",
		Insns: []Insn{
			&VarInsn{Opcode: ILOAD, Var: 0},
			&JumpInsn{Opcode: IFEQ, Target: other},
			&LdcInsn{Value: "s"},
			&VarInsn{Opcode: ASTORE, Var: 1},
			&JumpInsn{Opcode: GOTO, Target: join},
			other,
			&SimpleInsn{Opcode: ICONST_1},
			&MethodInsn{Opcode: INVOKESTATIC, Owner: "java/lang/Integer", Name: "valueOf", Desc: "(I)Ljava/lang/Integer;"},
			&VarInsn{Opcode: ASTORE, Var: 1},
			join,
			&VarInsn{Opcode: ALOAD, Var: 1},
			&SimpleInsn{Opcode: ARETURN},
		},
	}
	c := &Class{Version: 52, Name: "demo/Pick", SuperName: "java/lang/Object", Methods: []*Method{m}}

	var calls []string
	merge := func(a, b string) (string, error) {
		calls = append(calls, a+"|"+b)
		return "java/io/Serializable", nil
	}
	if _, err := Write(c, merge); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(calls) != 1 || (calls[0] != "java/lang/String|java/lang/Integer" && calls[0] != "java/lang/Integer|java/lang/String") {
		t.Errorf("merge calls: got %v", calls)
	}
	if m.MaxLocals != 2 || m.MaxStack != 1 {
		t.Errorf("got max locals %d, max stack %d, want 2 and 1", m.MaxLocals, m.MaxStack)
	}
}

func TestMergeErrorPropagates(t *testing.T) {
	other, join := &Label{}, &Label{}
	m := &Method{
		Access: AccStatic,
		Name:   "pick",
		Desc:   "(Z)V",
		Insns: []Insn{
			&VarInsn{Opcode: ILOAD, Var: 0},
			&JumpInsn{Opcode: IFEQ, Target: other},
			&SimpleInsn{Opcode: ACONST_NULL},
			&TypeInsn{Opcode: CHECKCAST, Desc: "a/A"},
			&JumpInsn{Opcode: GOTO, Target: join},
			other,
			&SimpleInsn{Opcode: ACONST_NULL},
			&TypeInsn{Opcode: CHECKCAST, Desc: "b/B"},
			join,
			&SimpleInsn{Opcode: POP},
			&SimpleInsn{Opcode: RETURN},
		},
	}
	c := &Class{Version: 52, Name: "demo/Err", SuperName: "java/lang/Object", Methods: []*Method{m}}
	boom := errors.New("boom")
	_, err := Write(c, func(a, b string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped boom", err)
	}
}

func TestDeadCodeErased(t *testing.T) {
	m := &Method{
		Access: AccStatic,
		Name:   "dead",
		Desc:   "()V",
		Insns: []Insn{
			&SimpleInsn{Opcode: RETURN},
			&SimpleInsn{Opcode: ICONST_0},
			&SimpleInsn{Opcode: POP},
			&SimpleInsn{Opcode: RETURN},
		},
	}
	c := &Class{Version: 52, Name: "demo/Dead", SuperName: "java/lang/Object", Methods: []*Method{m}}
	data, err := Write(c, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(data, ReadOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var ops []string
	for _, in := range got.Methods[0].Insns {
		if in.Op() >= 0 {
			ops = append(ops, OpName(in.Op()))
		}
	}
	want := []string{"RETURN", "NOP", "NOP", "ATHROW"}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("got %v, want %v", ops, want)
	}
}

func TestBranchOverflow(t *testing.T) {
	target := &Label{}
	insns := []Insn{&JumpInsn{Opcode: GOTO, Target: target}}
	for range 40000 {
		insns = append(insns, &SimpleInsn{Opcode: NOP})
	}
	insns = append(insns, target, &SimpleInsn{Opcode: RETURN})
	c := &Class{
		Version:   52,
		Name:      "demo/Far",
		SuperName: "java/lang/Object",
		Methods:   []*Method{{Access: AccStatic, Name: "far", Desc: "()V", Insns: insns}},
	}
	if _, err := Write(c, nil); !errors.Is(err, ErrBranchOverflow) {
		t.Fatalf("got %v, want ErrBranchOverflow", err)
	}
}

func TestSubroutineNeedsOldVersion(t *testing.T) {
	sub := &Label{}
	insns := []Insn{
		&JumpInsn{Opcode: JSR, Target: sub},
		&SimpleInsn{Opcode: RETURN},
		sub,
		&VarInsn{Opcode: ASTORE, Var: 0},
		&VarInsn{Opcode: RET, Var: 0},
	}
	for _, tc := range []struct {
		version uint32
		ok      bool
	}{
		{49, true},
		{52, false},
	} {
		c := &Class{
			Version:   tc.version,
			Name:      "demo/Sub",
			SuperName: "java/lang/Object",
			Methods:   []*Method{{Access: AccStatic, Name: "s", Desc: "()V", Insns: insns}},
		}
		_, err := Write(c, nil)
		if tc.ok && err != nil {
			t.Errorf("version %d: unexpected error %v", tc.version, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnsupported) {
			t.Errorf("version %d: got %v, want ErrUnsupported", tc.version, err)
		}
	}
}

func TestInconsistentStack(t *testing.T) {
	join := &Label{}
	insns := []Insn{
		&SimpleInsn{Opcode: ICONST_0},
		&JumpInsn{Opcode: IFEQ, Target: join},
		&SimpleInsn{Opcode: ICONST_1},
		join,
		&SimpleInsn{Opcode: RETURN},
	}
	c := &Class{
		Version:   52,
		Name:      "demo/Bad",
		SuperName: "java/lang/Object",
		Methods:   []*Method{{Access: AccStatic, Name: "bad", Desc: "()V", Insns: insns}},
	}
	if _, err := Write(c, nil); !errors.Is(err, ErrInconsistentStack) {
		t.Fatalf("got %v, want ErrInconsistentStack", err)
	}
}

func TestConstantsSurvive(t *testing.T) {
	values := []any{
		int32(-7), int32(math.MaxInt32), float32(1.5), float32(math.Inf(1)),
		int64(math.MinInt64), float64(-0.25), math.NaN(), "tab\there\x00nul \U0001F600", "lone \xed\xa0\x80 surrogate",
		Type{Desc: "(IJ)V"}, ObjectType("[I"),
		Handle{Kind: H_GETSTATIC, Owner: "java/lang/System", Name: "out", Desc: "Ljava/io/PrintStream;"},
	}
	var insns []Insn
	for _, v := range values {
		insns = append(insns, &LdcInsn{Value: v})
		if _, wide, _ := newConstPool().constant(v); wide {
			insns = append(insns, &SimpleInsn{Opcode: POP2})
		} else {
			insns = append(insns, &SimpleInsn{Opcode: POP})
		}
	}
	insns = append(insns, &SimpleInsn{Opcode: RETURN})
	c := &Class{
		Version:   52,
		Name:      "demo/Consts",
		SuperName: "java/lang/Object",
		Methods:   []*Method{{Access: AccStatic, Name: "k", Desc: "()V", Insns: insns}},
	}
	data, err := Write(c, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(data, ReadOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	i := 0
	for _, in := range got.Methods[0].Insns {
		ldc, ok := in.(*LdcInsn)
		if !ok {
			continue
		}
		want := values[i]
		i++
		if f, ok := want.(float64); ok && math.IsNaN(f) {
			if g, ok := ldc.Value.(float64); !ok || !math.IsNaN(g) {
				t.Errorf("got %v, want NaN", ldc.Value)
			}
			continue
		}
		if !reflect.DeepEqual(ldc.Value, want) {
			t.Errorf("constant %d: got %#v, want %#v", i-1, ldc.Value, want)
		}
	}
	if i != len(values) {
		t.Errorf("got %d constants, want %d", i, len(values))
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		name string
		enc  []byte
		s    string
	}{
		{"ascii", []byte("abc"), "abc"},
		{"nul", []byte{0xc0, 0x80}, "\x00"},
		{"two byte", []byte{0xc3, 0xa9}, "é"},
		{"pair", []byte{0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80}, "\U0001F600"},
		{"lone high", []byte{'a', 0xed, 0xa0, 0x80, 'b'}, "a\xed\xa0\x80b"},
		{"lone low", []byte{0xed, 0xb0, 0x80}, "\xed\xb0\x80"},
		{"reversed pair", []byte{0xed, 0xb8, 0x80, 0xed, 0xa0, 0xbd}, "\xed\xb8\x80\xed\xa0\xbd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeMUTF8(tt.enc)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.s {
				t.Errorf("decode = %q, want %q", got, tt.s)
			}
			if enc := encodeMUTF8(tt.s); !reflect.DeepEqual(enc, tt.enc) {
				t.Errorf("encode = % x, want % x", enc, tt.enc)
			}
		})
	}
}

func TestSplitMethodDesc(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
		fail   bool
	}{
		{"()V", nil, "V", false},
		{"(IJLjava/lang/String;[[D)Z", []string{"I", "J", "Ljava/lang/String;", "[[D"}, "Z", false},
		{"(I", nil, "", true},
		{"I)V", nil, "", true},
		{"(Q)V", nil, "", true},
	}
	for _, tt := range tests {
		params, ret, err := SplitMethodDesc(tt.desc)
		if tt.fail {
			if err == nil {
				t.Errorf("%s: expected error", tt.desc)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.desc, err)
			continue
		}
		if !reflect.DeepEqual(params, tt.params) || ret != tt.ret {
			t.Errorf("%s: got %v %s, want %v %s", tt.desc, params, ret, tt.params, tt.ret)
		}
	}
	if n, _ := ArgsSize("(IJLjava/lang/Object;D)V", false); n != 7 {
		t.Errorf("args size: got %d, want 7", n)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("PK\x03\x04"), ReadOptions{}); !errors.Is(err, ErrNotClass) {
		t.Errorf("got %v, want ErrNotClass", err)
	}
	if _, err := Parse([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0}, ReadOptions{}); !errors.Is(err, ErrTruncated) {
		t.Errorf("got %v, want ErrTruncated", err)
	}
}
