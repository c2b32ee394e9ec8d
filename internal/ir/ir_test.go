package ir

import (
	"math"
	"reflect"
	"testing"

	"bcdiff/internal/classfile"
)

func TestLabelName(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "A"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
	}
	for _, tt := range tests {
		if got := LabelName(tt.i); got != tt.want {
			t.Errorf("LabelName(%d) = %q, want %q", tt.i, got, tt.want)
		}
	}
}

func TestLabelNamesUnique(t *testing.T) {
	seen := map[string]int{}
	for i := 0; i < 20000; i++ {
		n := LabelName(i)
		if j, ok := seen[n]; ok {
			t.Fatalf("LabelName(%d) = LabelName(%d) = %q", i, j, n)
		}
		seen[n] = i
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"plain",
		"tab\there",
		"quote \" and 'single'",
		`back\slash`,
		`\u0041 is not an escape`,
		"line\nbreak\r\n",
		"\x00\x01\x7f",
		"café",
		"\U0001F600 astral",
		"\u2028 separator",
		"\xed\xa0\x80 lone high surrogate",
		"lone low \xed\xb0\x80",
	}
	for _, s := range tests {
		got, err := Unescape(Escape(s))
		if err != nil {
			t.Errorf("Unescape(Escape(%q)): %v", s, err)
			continue
		}
		if got != s {
			t.Errorf("round trip of %q gave %q", s, got)
		}
	}
}

func TestEscapeLoneSurrogate(t *testing.T) {
	if got := Escape("a\xed\xa0\x80b"); got != `a\ud800b` {
		t.Errorf("Escape = %q, want %q", got, `a\ud800b`)
	}
	got, err := Unescape(`\ud800\u0041`)
	if err != nil {
		t.Fatal(err)
	}
	if got != "\xed\xa0\x80A" {
		t.Errorf("Unescape = %q, want %q", got, "\xed\xa0\x80A")
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a\tb`, "a\tb"},
		{`\'`, "'"},
		{`\u0041B`, "AB"},
		{`\ud83d\ude00`, "\U0001F600"},
		{`\q`, `\q`},
		{`end\`, `end\`},
	}
	for _, tt := range tests {
		got, err := Unescape(tt.in)
		if err != nil {
			t.Errorf("Unescape(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := Unescape(`\u12`); err == nil {
		t.Error("truncated \\u escape accepted")
	}
	if _, err := Unescape(`\uzzzz`); err == nil {
		t.Error("non-hex \\u escape accepted")
	}
}

func TestParseConst(t *testing.T) {
	tests := []struct {
		tok  string
		want any
	}{
		{"42", int32(42)},
		{"-7", int32(-7)},
		{"42L", int64(42)},
		{"-9223372036854775808L", int64(math.MinInt64)},
		{"1.5F", float32(1.5)},
		{"1.5D", 1.5},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"InfinityF", float32(math.Inf(1))},
		{`"hi\n"`, "hi\n"},
		{"Ljava/lang/String;", classfile.Type{Desc: "Ljava/lang/String;"}},
		{"[I", classfile.Type{Desc: "[I"}},
		{"(I)V", classfile.Type{Desc: "(I)V"}},
		{
			"handle[H_INVOKESTATIC a/B.f(I)V]",
			classfile.Handle{Kind: classfile.H_INVOKESTATIC, Owner: "a/B", Name: "f", Desc: "(I)V"},
		},
	}
	for _, tt := range tests {
		got, err := ParseConst(tt.tok)
		if err != nil {
			t.Errorf("ParseConst(%q): %v", tt.tok, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseConst(%q) = %#v, want %#v", tt.tok, got, tt.want)
		}
	}

	for _, tok := range []string{"NaN", "NaNF"} {
		v, err := ParseConst(tok)
		if err != nil {
			t.Fatalf("ParseConst(%q): %v", tok, err)
		}
		switch v := v.(type) {
		case float64:
			if tok != "NaN" || !math.IsNaN(v) {
				t.Errorf("ParseConst(%q) = %v", tok, v)
			}
		case float32:
			if tok != "NaNF" || !math.IsNaN(float64(v)) {
				t.Errorf("ParseConst(%q) = %v", tok, v)
			}
		default:
			t.Errorf("ParseConst(%q) = %T", tok, v)
		}
	}

	for _, bad := range []string{"", "2147483648", "xyzL", "[Q", "(I", "1.2.3D"} {
		if v, err := ParseConst(bad); err == nil {
			t.Errorf("ParseConst(%q) = %v, want error", bad, v)
		}
	}
}

func TestFormatConstRoundTrip(t *testing.T) {
	values := []any{
		int32(0),
		int32(math.MinInt32),
		int64(1) << 40,
		float32(0.1),
		float32(-3),
		float32(math.Inf(-1)),
		0.1,
		1e300,
		math.Inf(1),
		"with \"quotes\"",
		classfile.Type{Desc: "[[Ljava/lang/Object;"},
		classfile.Handle{Kind: classfile.H_GETSTATIC, Owner: "a/B", Name: "x", Desc: "J"},
		classfile.Handle{Kind: classfile.H_INVOKEINTERFACE, Owner: "a/I", Name: "m", Desc: "()V", Itf: true},
	}
	for _, v := range values {
		tok, err := FormatConst(v)
		if err != nil {
			t.Fatalf("FormatConst(%#v): %v", v, err)
		}
		got, err := ParseConst(tok)
		if err != nil {
			t.Fatalf("ParseConst(%q): %v", tok, err)
		}
		if !reflect.DeepEqual(got, v) {
			t.Errorf("%#v -> %q -> %#v", v, tok, got)
		}
	}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		h    classfile.Handle
		want string
	}{
		{
			classfile.Handle{Kind: classfile.H_INVOKESTATIC, Owner: "java/lang/invoke/LambdaMetafactory", Name: "metafactory", Desc: "(Ljava/lang/Object;)V"},
			"handle[H_INVOKESTATIC java/lang/invoke/LambdaMetafactory.metafactory(Ljava/lang/Object;)V]",
		},
		{
			classfile.Handle{Kind: classfile.H_PUTFIELD, Owner: "a/B", Name: "f", Desc: "[I"},
			"handle[H_PUTFIELD a/B.f [I]",
		},
		{
			classfile.Handle{Kind: classfile.H_INVOKESTATIC, Owner: "a/I", Name: "s", Desc: "()V", Itf: true},
			"handle[H_INVOKESTATIC a/I.s()V itf]",
		},
	}
	for _, tt := range tests {
		if got := FormatHandle(tt.h); got != tt.want {
			t.Errorf("FormatHandle = %q, want %q", got, tt.want)
		}
		got, err := ParseHandle(tt.want)
		if err != nil {
			t.Errorf("ParseHandle(%q): %v", tt.want, err)
			continue
		}
		if got != tt.h {
			t.Errorf("ParseHandle(%q) = %+v, want %+v", tt.want, got, tt.h)
		}
	}

	for _, bad := range []string{
		"handle[]",
		"handle[H_BOGUS a/B.f()V]",
		"handle[H_INVOKESTATIC f()V]",
		"handle[H_GETFIELD a/B.f]",
		"handle[H_INVOKEVIRTUAL a/B.f]",
	} {
		if _, err := ParseHandle(bad); err == nil {
			t.Errorf("ParseHandle(%q) succeeded", bad)
		}
	}
}

func TestFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"GETSTATIC a/B.c I", []string{"GETSTATIC", "a/B.c", "I"}},
		{
			"INVOKEDYNAMIC run ()Ljava/lang/Runnable; handle[H_INVOKESTATIC a/B.m()V] args[()V, handle[H_INVOKESTATIC a/C.n(I[J)V], \"x, y\"]",
			[]string{"INVOKEDYNAMIC", "run", "()Ljava/lang/Runnable;", "handle[H_INVOKESTATIC a/B.m()V]", "args[()V, handle[H_INVOKESTATIC a/C.n(I[J)V], \"x, y\"]"},
		},
		{`LDC "two words"`, []string{"LDC", `"two words"`}},
		{`LDC "a \" b"`, []string{"LDC", `"a \" b"`}},
		{"LOOKUPSWITCH mapping[1=A, 2=B] default[C]", []string{"LOOKUPSWITCH", "mapping[1=A, 2=B]", "default[C]"}},
		{"MULTIANEWARRAY [[I 2", []string{"MULTIANEWARRAY", "[[I", "2"}},
		{"  RETURN  ", []string{"RETURN"}},
	}
	for _, tt := range tests {
		if got := Fields(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Fields(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	in, ok := Bracketed(`args[()V, handle[H_INVOKESTATIC a/C.n(I[J)V], "x, y", 3]`, "args")
	if !ok {
		t.Fatal("Bracketed failed")
	}
	want := []string{"()V", "handle[H_INVOKESTATIC a/C.n(I[J)V]", `"x, y"`, "3"}
	if got := List(in); !reflect.DeepEqual(got, want) {
		t.Errorf("List = %q, want %q", got, want)
	}
	if got := List(""); got != nil {
		t.Errorf("List(\"\") = %q", got)
	}
}

func TestAccessWords(t *testing.T) {
	access := classfile.AccPublic | classfile.AccStatic | classfile.AccVarargs | 0x8000
	words := MethodAccessWords(access)
	want := []string{"PUBLIC", "STATIC", "VARARGS", "0x8000"}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("MethodAccessWords = %q, want %q", words, want)
	}
	got := 0
	for _, w := range words {
		bit, err := ParseMethodFlag(w)
		if err != nil {
			t.Fatal(err)
		}
		got |= bit
	}
	if got != access {
		t.Errorf("parsed access 0x%X, want 0x%X", got, access)
	}
	if bit, err := ParseFieldFlag("volatile"); err != nil || bit != classfile.AccVolatile {
		t.Errorf("ParseFieldFlag(volatile) = %d, %v", bit, err)
	}
	if _, err := ParseFieldFlag("SYNCHRONIZED"); err == nil {
		t.Error("SYNCHRONIZED accepted as a field modifier")
	}
}

func TestNullable(t *testing.T) {
	if got := Nullable(nil); got != Null {
		t.Errorf("Nullable(nil) = %q", got)
	}
	if got := ParseNullable(Null); got != nil {
		t.Errorf("ParseNullable(null) = %q", *got)
	}
	p := ParseNullable("")
	if p == nil || *p != "" {
		t.Errorf("empty string lost its identity: %v", p)
	}
}
