package jar

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"bcdiff/internal/classfile"
)

func tinyClass(t *testing.T, name string) []byte {
	t.Helper()
	data, err := classfile.Write(&classfile.Class{
		Version:   52,
		Access:    classfile.AccPublic | classfile.AccSuper,
		Name:      name,
		SuperName: "java/lang/Object",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func roundTrip(t *testing.T, a *Archive, opts Options) *Archive {
	t.Helper()
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()), opts)
	if err != nil {
		t.Fatal(err)
	}
	return back
}

func TestClassification(t *testing.T) {
	fatBinary := []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 2}
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Archive{Entries: []*Entry{
		{Name: "demo/", Dir: true, Modified: when},
		{Name: "demo/A.class", Data: tinyClass(t, "demo/A"), Modified: when},
		{Name: "demo/notes.txt", Data: []byte("keep me\n"), Modified: when},
		{Name: "native/libfoo.dylib", Data: fatBinary, Modified: when},
		{Name: "native/libbar.JNILIB", Data: fatBinary, Modified: when},
	}}
	back := roundTrip(t, a, Options{})

	want := map[string]bool{
		"demo/":                false,
		"demo/A.class":         true,
		"demo/notes.txt":       false,
		"native/libfoo.dylib":  false,
		"native/libbar.JNILIB": false,
	}
	if len(back.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(back.Entries), len(want))
	}
	for _, e := range back.Entries {
		if e.Class != want[e.Name] {
			t.Errorf("%s: class = %v, want %v", e.Name, e.Class, want[e.Name])
		}
	}
	notes, ok := back.Lookup("demo/notes.txt")
	if !ok || string(notes.Data) != "keep me\n" {
		t.Errorf("resource bytes changed: %q", notes.Data)
	}
	if dir, _ := back.Lookup("demo/"); dir == nil || !dir.Dir {
		t.Error("directory entry lost")
	}
	if got := len(back.Classes()); got != 1 {
		t.Errorf("Classes() has %d entries, want 1", got)
	}

	// With no native suffixes the fat binary probes as a class.
	loose := roundTrip(t, a, Options{NativeSuffixes: []string{}})
	if e, _ := loose.Lookup("native/libfoo.dylib"); !e.Class {
		t.Error("magic probe ignored when no suffixes are configured")
	}
}

func TestSort(t *testing.T) {
	a := &Archive{Entries: []*Entry{
		{Name: "z/Z.class"},
		{Name: "META-INF/services/x"},
		{Name: "a/A.class"},
		{Name: "META-INF/MANIFEST.MF"},
		{Name: "META-INF/", Dir: true},
	}}
	a.Sort()
	want := []string{"META-INF/", "META-INF/MANIFEST.MF", "META-INF/services/x", "a/A.class", "z/Z.class"}
	for i, e := range a.Entries {
		if e.Name != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Name, want[i])
		}
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	data := []byte("definitely not a zip file")
	_, err := Read(bytes.NewReader(data), int64(len(data)), Options{})
	if !errors.Is(err, ErrNotArchive) {
		t.Errorf("got %v, want ErrNotArchive", err)
	}
}
