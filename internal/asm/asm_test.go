package asm

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"bcdiff/internal/classfile"

	"golang.org/x/tools/txtar"
)

func fixture(t *testing.T, archive, name string) []string {
	t.Helper()
	a, err := txtar.ParseFile("testdata/" + archive)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range a.Files {
		if f.Name == name {
			return strings.Split(strings.TrimRight(string(f.Data), "\n"), "\n")
		}
	}
	t.Fatalf("%s: no file %s", archive, name)
	return nil
}

func method(t *testing.T, c *classfile.Class, name string) *classfile.Method {
	t.Helper()
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("no method %s", name)
	return nil
}

func objectMerge(a, b string) (string, error) { return "java/lang/Object", nil }

func TestAssembleFixture(t *testing.T) {
	c, err := Assemble(fixture(t, "counter.txtar", "counter.ir"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "demo/Counter" || c.SuperName != "java/lang/Object" || c.Version != 52 {
		t.Fatalf("header = %s %s %d", c.Name, c.SuperName, c.Version)
	}
	if c.Access != classfile.AccPublic|classfile.AccSuper {
		t.Errorf("access = 0x%X", c.Access)
	}
	if c.Signature != nil {
		t.Errorf("signature = %q, want nil", *c.Signature)
	}
	if c.SourceFile == nil || *c.SourceFile != "Counter.java" || c.SourceDebug != nil {
		t.Errorf("source = %v %v", c.SourceFile, c.SourceDebug)
	}
	if len(c.InnerClasses) != 1 || c.InnerClasses[0].InnerName != "Step" || c.InnerClasses[0].Access != 9 {
		t.Errorf("inner classes = %+v", c.InnerClasses)
	}

	if len(c.Fields) != 3 {
		t.Fatalf("got %d fields", len(c.Fields))
	}
	if v, ok := c.Fields[0].Value.(int64); !ok || v != 100 {
		t.Errorf("LIMIT = %#v", c.Fields[0].Value)
	}
	if c.Fields[1].Value != nil {
		t.Errorf("count = %#v, want no value", c.Fields[1].Value)
	}
	if v := c.Fields[2].Value; v != "hello, \"world\"\n" {
		t.Errorf("GREETING = %#v", v)
	}

	run := method(t, c, "run")
	vars := map[string]int{}
	for _, in := range run.Insns {
		if v, ok := in.(*classfile.VarInsn); ok {
			vars[classfile.OpName(v.Opcode)] = v.Var
		}
	}
	if vars["ISTORE"] != 1 || vars["ASTORE"] != 2 {
		t.Errorf("slots = %v, want i=1 e=2", vars)
	}
	if len(run.TryCatch) != 2 || run.TryCatch[0].Type != "java/lang/RuntimeException" || run.TryCatch[1].Type != "" {
		t.Fatalf("try/catch = %+v", run.TryCatch)
	}
	if run.TryCatch[0].Start != run.TryCatch[1].Start {
		t.Error("TRY ranges do not share label A")
	}
	var indy *classfile.InvokeDynamicInsn
	for _, in := range run.Insns {
		if in, ok := in.(*classfile.InvokeDynamicInsn); ok {
			indy = in
		}
	}
	if indy == nil || indy.Bsm.Name != "metafactory" || len(indy.BsmArgs) != 3 {
		t.Fatalf("invokedynamic = %+v", indy)
	}
	if h, ok := indy.BsmArgs[1].(classfile.Handle); !ok || h.Name != "lambda$run$0" {
		t.Errorf("bootstrap arg = %#v", indy.BsmArgs[1])
	}

	ctor := method(t, c, "<init>")
	if len(ctor.LocalVars) != 1 || ctor.LocalVars[0].Name != "self" || ctor.LocalVars[0].Index != 0 {
		t.Errorf("local vars = %+v", ctor.LocalVars)
	}
	size := method(t, c, "size")
	if len(size.Insns) != 0 || len(size.Exceptions) != 1 {
		t.Errorf("size() = %+v", size)
	}

	data, err := classfile.Write(c, objectMerge)
	if err != nil {
		t.Fatal(err)
	}
	back, err := classfile.Parse(data, classfile.ReadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := method(t, back, "pick").MaxLocals; got != 3 {
		t.Errorf("pick max locals = %d, want 3", got)
	}
	if got := len(method(t, back, "run").TryCatch); got != 2 {
		t.Errorf("run has %d handlers after round trip", got)
	}
}

func TestSlotAllocation(t *testing.T) {
	tests := []struct {
		header string
		want   map[string]int
	}{
		{
			"DEFINE PUBLIC STATIC f(I a, J b, I c)V",
			map[string]int{"a": 0, "b": 1, "c": 3},
		},
		{
			"DEFINE PUBLIC f(I a, J b, I c)V",
			map[string]int{"this": 0, "a": 1, "b": 2, "c": 4},
		},
		{
			"DEFINE STATIC f(I a, I 7, I c)V",
			map[string]int{"a": 0, "7": 7, "c": 8},
		},
		{
			"DEFINE STATIC f(I 7, I a)V",
			map[string]int{"7": 7, "a": 8},
		},
		{
			"DEFINE f(D 3, I a)V",
			map[string]int{"this": 0, "3": 3, "a": 5},
		},
	}
	for _, tt := range tests {
		_, vars, err := methodHeader(line{text: tt.header})
		if err != nil {
			t.Errorf("%s: %v", tt.header, err)
			continue
		}
		for name, slot := range tt.want {
			if got := vars.slots[name]; got != slot {
				t.Errorf("%s: %s = %d, want %d", tt.header, name, got, slot)
			}
		}
	}
}

func TestWideReservesSecondSlot(t *testing.T) {
	vars := newLocals(true)
	if s, _ := vars.resolve("x", true); s != 0 {
		t.Fatalf("x = %d", s)
	}
	if s, _ := vars.resolve("y", false); s != 2 {
		t.Errorf("y = %d, want 2 after a wide x", s)
	}
	if s, _ := vars.resolve("9", false); s != 9 {
		t.Errorf("explicit slot 9 = %d", s)
	}
	if s, _ := vars.resolve("z", false); s != 10 {
		t.Errorf("z = %d, want 10", s)
	}
}

func TestNumericLocalVariableNames(t *testing.T) {
	c, err := Assemble([]string{
		".VERSION 52",
		".NAME a/B",
		".SUPER java/lang/Object",
		".METHOD",
		"    DEFINE STATIC f(I 0)V",
		"    .METHODLVT 5 I 2 A B",
		"    .METHODLVT this I 3 A B",
		"    .METHODLVT count I 4 A B",
		"    A:",
		"    ICONST_0",
		"    ISTORE 5",
		"    ICONST_1",
		"    ISTORE this",
		"    ILOAD count",
		"    POP",
		"    B:",
		"    RETURN",
		".END",
	})
	if err != nil {
		t.Fatal(err)
	}
	var slots []int
	for _, in := range c.Methods[0].Insns {
		if v, ok := in.(*classfile.VarInsn); ok {
			slots = append(slots, v.Var)
		}
	}
	if want := []int{5, 6, 4}; !reflect.DeepEqual(slots, want) {
		t.Errorf("slots = %v, want %v", slots, want)
	}
}

func TestMethodDescriptor(t *testing.T) {
	m, _, err := methodHeader(line{text: "DEFINE PUBLIC STATIC VARARGS main([Ljava/lang/String; 0, Ljava/util/Map; 1)Ljava/lang/Object;"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Desc != "([Ljava/lang/String;Ljava/util/Map;)Ljava/lang/Object;" {
		t.Errorf("desc = %s", m.Desc)
	}
	if m.Access != classfile.AccPublic|classfile.AccStatic|classfile.AccVarargs {
		t.Errorf("access = 0x%X", m.Access)
	}
}

func TestLabelsSharedAcrossReferences(t *testing.T) {
	c, err := Assemble([]string{
		".VERSION 52",
		".NAME a/B",
		".SUPER java/lang/Object",
		".METHOD",
		"    DEFINE STATIC f()V",
		"    GOTO L",
		"    K:",
		"    RETURN",
		"    L:",
		"    GOTO K",
		".END",
	})
	if err != nil {
		t.Fatal(err)
	}
	insns := c.Methods[0].Insns
	fwd := insns[0].(*classfile.JumpInsn).Target
	back := insns[4].(*classfile.JumpInsn).Target
	if fwd != insns[3] {
		t.Error("forward reference resolved to a different label")
	}
	if back != insns[1] {
		t.Error("backward reference resolved to a different label")
	}
}

func TestSyntaxErrors(t *testing.T) {
	head := []string{".VERSION 52", ".NAME a/B", ".SUPER java/lang/Object"}
	tests := []struct {
		name string
		body []string
		line int
		msg  string
	}{
		{"unknown directive", []string{".BOGUS x"}, 3, "unknown directive"},
		{"unknown mnemonic", []string{".METHOD", "    DEFINE STATIC f()V", "    FROB 1", ".END"}, 5, "unknown instruction"},
		{"bad access word", []string{".METHOD", "    DEFINE SHINY f()V", ".END"}, 4, "unknown access modifier"},
		{"field attribute", []string{".FIELD", "    DEFINE I x", "    COLOR red", ".END"}, 5, "unknown field attribute"},
		{"dangling label", []string{".METHOD", "    DEFINE STATIC f()V", "    GOTO Q", ".END"}, 5, "never declared"},
		{"label twice", []string{".METHOD", "    DEFINE STATIC f()V", "    A:", "    A:", "    RETURN", ".END"}, 6, "declared twice"},
		{"alias first", []string{".METHOD", "    DEFINE STATIC f()V", "    INVOKEDYNAMIC r ()V ${H_META} args[]", ".END"}, 5, "used before"},
		{"switch labels", []string{".METHOD", "    DEFINE STATIC f(I 0)V", "    A:", "    ILOAD 0", "    TABLESWITCH range[0:2] offsets[A] default[A]", ".END"}, 7, "needs 3 labels"},
		{"pinned collision", []string{".METHOD", "    DEFINE STATIC f(J a, I 1)V", ".END"}, 4, "collides"},
		{"operand count", []string{".METHOD", "    DEFINE STATIC f()V", "    ILOAD", ".END"}, 5, "takes 1 operands"},
		{"bipush range", []string{".METHOD", "    DEFINE STATIC f()V", "    BIPUSH 300", ".END"}, 5, "out of range"},
		{"unterminated", []string{".METHOD", "    DEFINE STATIC f()V"}, 5, "unterminated"},
		{"late directive", []string{".FIELD", "    DEFINE I x", ".END", ".IMPLEMENTS a/I"}, 6, "after a member block"},
		{"int value on long", []string{".FIELD", "    DEFINE STATIC J x", "    VALUE 5", ".END"}, 5, "does not fit"},
		{"string value on object", []string{".FIELD", "    DEFINE STATIC Ljava/lang/Object; o", `    VALUE "s"`, ".END"}, 5, "does not fit"},
		{"double value on float", []string{".FIELD", "    DEFINE STATIC F f", "    VALUE 1.5D", ".END"}, 5, "does not fit"},
	}
	for _, tt := range tests {
		_, err := Assemble(append(append([]string{}, head...), tt.body...))
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%s: got %v, want SyntaxError", tt.name, err)
			continue
		}
		if se.Line != tt.line || !strings.Contains(se.Msg, tt.msg) {
			t.Errorf("%s: got line %d %q, want line %d containing %q", tt.name, se.Line, se.Msg, tt.line, tt.msg)
		}
	}
}

func TestMissingHeader(t *testing.T) {
	if _, err := Assemble([]string{".NAME a/B"}); err == nil {
		t.Error("document without .VERSION assembled")
	}
}
