package disasm

import (
	"bytes"
	"strings"
	"testing"

	"bcdiff/internal/asm"
	"bcdiff/internal/classfile"

	"golang.org/x/tools/txtar"
)

func readArchive(t *testing.T, name string) map[string][]string {
	t.Helper()
	a, err := txtar.ParseFile("testdata/" + name)
	if err != nil {
		t.Fatal(err)
	}
	docs := map[string][]string{}
	for _, f := range a.Files {
		docs[f.Name] = strings.Split(strings.TrimRight(string(f.Data), "\n"), "\n")
	}
	return docs
}

func objectMerge(a, b string) (string, error) { return "java/lang/Object", nil }

func greeter() *classfile.Class {
	start, end := &classfile.Label{}, &classfile.Label{}
	return &classfile.Class{
		Version:    52,
		Access:     classfile.AccPublic | classfile.AccSuper,
		Name:       "demo/Greeter",
		SuperName:  "java/lang/Object",
		Interfaces: []string{"java/util/function/Supplier"},
		SourceFile: classfile.Str("Greeter.java"),
		Fields: []*classfile.Field{
			{Access: classfile.AccPrivate | classfile.AccFinal, Name: "name", Desc: "Ljava/lang/String;"},
			{Access: classfile.AccPublic | classfile.AccStatic | classfile.AccFinal, Name: "MAX", Desc: "I", Value: int32(10)},
		},
		Methods: []*classfile.Method{
			{
				Access: classfile.AccPublic,
				Name:   "get",
				Desc:   "()Ljava/lang/Object;",
				Insns: []classfile.Insn{
					start,
					&classfile.LineNumber{Line: 7, Start: start},
					&classfile.VarInsn{Opcode: classfile.ALOAD, Var: 0},
					&classfile.FieldInsn{Opcode: classfile.GETFIELD, Owner: "demo/Greeter", Name: "name", Desc: "Ljava/lang/String;"},
					&classfile.SimpleInsn{Opcode: classfile.DUP},
					&classfile.JumpInsn{Opcode: classfile.IFNONNULL, Target: end},
					&classfile.SimpleInsn{Opcode: classfile.POP},
					&classfile.LdcInsn{Value: "nobody"},
					end,
					&classfile.SimpleInsn{Opcode: classfile.ARETURN},
				},
				TryCatch:  []classfile.TryCatch{{Start: start, End: end, Handler: end}},
				LocalVars: []classfile.LocalVar{{Name: "self", Desc: "Ldemo/Greeter;", Start: start, End: end, Index: 0}},
			},
			{
				Access:     classfile.AccPublic | classfile.AccStatic,
				Name:       "greet",
				Desc:       "(Ljava/lang/String;JI)V",
				Exceptions: []string{"java/io/IOException"},
				Insns: []classfile.Insn{
					&classfile.VarInsn{Opcode: classfile.LLOAD, Var: 1},
					&classfile.SimpleInsn{Opcode: classfile.L2I},
					&classfile.VarInsn{Opcode: classfile.ILOAD, Var: 3},
					&classfile.SimpleInsn{Opcode: classfile.IADD},
					&classfile.IntInsn{Opcode: classfile.NEWARRAY, Operand: classfile.T_CHAR},
					&classfile.SimpleInsn{Opcode: classfile.POP},
					&classfile.SimpleInsn{Opcode: classfile.RETURN},
				},
			},
		},
	}
}

func TestRenderGolden(t *testing.T) {
	want := readArchive(t, "greeter.txtar")["want.ir"]
	got, err := Render(greeter())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("render mismatch\ngot:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

// TestRoundTrip checks assemble(render(T)) against T for trees that went
// through the binary form with debug info stripped.
func TestRoundTrip(t *testing.T) {
	docs := readArchive(t, "roundtrip.txtar")
	for _, name := range []string{"modern.ir", "legacy.ir", "strings.ir"} {
		t.Run(name, func(t *testing.T) {
			src, err := asm.Assemble(docs[name])
			if err != nil {
				t.Fatal(err)
			}
			data, err := classfile.Write(src, objectMerge)
			if err != nil {
				t.Fatal(err)
			}
			tree, err := classfile.Parse(data, classfile.ReadOptions{SkipDebug: true})
			if err != nil {
				t.Fatal(err)
			}
			lines, err := Render(tree)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := strings.Join(lines, "\n"), strings.Join(docs[name], "\n"); got != want {
				t.Errorf("render of parsed class differs from source\ngot:\n%s\nwant:\n%s", got, want)
			}

			again, err := asm.Assemble(lines)
			if err != nil {
				t.Fatal(err)
			}
			data2, err := classfile.Write(again, objectMerge)
			if err != nil {
				t.Fatal(err)
			}
			data1, err := classfile.Write(tree, objectMerge)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data1, data2) {
				t.Error("reassembled class serializes differently")
			}
		})
	}
}

func TestRenderAliasOnlyForDominantBootstrap(t *testing.T) {
	lines, err := Render(greeter())
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		if strings.Contains(l, "ALIAS") {
			t.Errorf("unexpected alias line %q in a class without call sites", l)
		}
	}
}
