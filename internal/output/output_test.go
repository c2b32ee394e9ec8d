package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteIR(t *testing.T) {
	dir := t.TempDir()
	if err := WriteIR(dir, "demo/inner/A", []string{".VERSION 52 // Java 8", ".NAME demo/inner/A"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "ir", "demo", "inner", "A.ir"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), ".VERSION 52 // Java 8\n.NAME demo/inner/A\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteClassesJSON(t *testing.T) {
	dir := t.TempDir()
	in := []ClassEntry{{Name: "demo/A", Entry: "demo/A.class", Super: "java/lang/Object", Version: 52, Methods: 2}}
	if err := WriteClassesJSON(dir, in); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "classes.json"))
	if err != nil {
		t.Fatal(err)
	}
	var out []ClassEntry
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"demo/A.run(I)V", "demo/A.run_I_V"},
		{"demo/A.<init>()V", "demo/A.init__V"},
		{"demo/A$B.get([Ljava/lang/String;)Ljava/lang/Object;", "demo/A_B.get_ALjava.lang.String_Ljava.lang.Object"},
	}
	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
