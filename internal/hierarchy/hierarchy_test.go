package hierarchy

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"bcdiff/internal/classfile"
)

func class(name, super string, iface bool, interfaces ...string) *classfile.Class {
	access := classfile.AccPublic | classfile.AccSuper
	if iface {
		access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	}
	return &classfile.Class{
		Version:    52,
		Access:     access,
		Name:       name,
		SuperName:  super,
		Interfaces: interfaces,
	}
}

func demoTypes() MapProvider {
	return NewMapProvider(
		class("demo/Shape", "java/lang/Object", true),
		class("demo/Named", "java/lang/Object", true),
		class("demo/Base", "java/lang/Object", false, "demo/Shape"),
		class("demo/Circle", "demo/Base", false),
		class("demo/Square", "demo/Base", false, "demo/Named"),
		class("demo/Big", "demo/Square", false),
		class("demo/Other", "java/lang/Object", false, "demo/Named"),
	)
}

func TestCommonAncestor(t *testing.T) {
	c := NewComputer(Chain(demoTypes(), &PlatformProvider{}), true)
	tests := []struct {
		a, b string
		want string
	}{
		{"java/lang/String", "java/lang/Integer", "java/lang/Object"},
		{"java/lang/Integer", "java/lang/Long", "java/lang/Number"},
		{"demo/Circle", "demo/Circle", "demo/Circle"},
		{"java/lang/Object", "demo/Circle", "java/lang/Object"},
		{"demo/Circle", "demo/Square", "demo/Base"},
		{"demo/Big", "demo/Circle", "demo/Base"},
		{"demo/Big", "demo/Square", "demo/Square"},
		{"demo/Square", "demo/Big", "demo/Square"},
		{"demo/Shape", "demo/Big", "demo/Shape"},
		{"demo/Circle", "demo/Shape", "demo/Shape"},
		{"demo/Named", "demo/Circle", "java/lang/Object"},
		{"demo/Named", "demo/Other", "demo/Named"},
		{"demo/Other", "demo/Square", "java/lang/Object"},
		{"java/lang/IllegalArgumentException", "java/lang/IllegalStateException", "java/lang/RuntimeException"},
		{"java/io/IOException", "java/lang/RuntimeException", "java/lang/Exception"},
		{"java/util/ArrayList", "java/util/List", "java/util/List"},
		{"java/util/ArrayList", "java/util/LinkedList", "java/util/AbstractList"},
		{"java/util/HashMap", "java/util/TreeMap", "java/util/AbstractMap"},
	}
	for _, tt := range tests {
		got, err := c.CommonAncestor(tt.a, tt.b)
		if err != nil {
			t.Errorf("CommonAncestor(%s, %s): %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CommonAncestor(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestChainOrder(t *testing.T) {
	// The run's own classes shadow the platform table.
	shadow := NewMapProvider(class("java/lang/Integer", "demo/Base", false))
	p := Chain(shadow, nil, demoTypes(), &PlatformProvider{})
	ti, err := p.Lookup("java/lang/Integer")
	if err != nil {
		t.Fatal(err)
	}
	if ti.Super != "demo/Base" {
		t.Errorf("Integer super = %s, want demo/Base", ti.Super)
	}
	if _, err := p.Lookup("demo/Missing"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("missing type: got %v, want ErrUnresolved", err)
	}
}

func TestUnresolvedType(t *testing.T) {
	strict := NewComputer(demoTypes(), true)
	if _, err := strict.CommonAncestor("demo/Circle", "demo/Missing"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("strict: got %v, want ErrUnresolved", err)
	}

	lenient := NewComputer(demoTypes(), false)
	got, err := lenient.CommonAncestor("demo/Circle", "demo/Missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != Object {
		t.Errorf("lenient: got %s, want %s", got, Object)
	}

	// Object itself never reaches the provider.
	empty := NewComputer(MapProvider{}, true)
	if got, err := empty.CommonAncestor(Object, Object); err != nil || got != Object {
		t.Errorf("Object, Object = %s, %v", got, err)
	}
}

func TestCycleIsAnError(t *testing.T) {
	p := MapProvider{
		"demo/A": {Name: "demo/A", Super: "demo/B"},
		"demo/B": {Name: "demo/B", Super: "demo/A"},
		"demo/C": {Name: "demo/C", Super: Object},
	}
	c := NewComputer(p, true)
	if _, err := c.CommonAncestor("demo/C", "demo/A"); err == nil {
		t.Error("expected an error for a cyclic superclass chain")
	}
}

func TestIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	classes := filepath.Join(dir, "classes")
	if err := os.MkdirAll(filepath.Join(classes, "demo"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*classfile.Class{
		class("demo/Base", "java/lang/Object", false, "demo/Shape"),
		class("demo/Shape", "java/lang/Object", true),
	} {
		data, err := classfile.Write(c, nil)
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(classes, filepath.FromSlash(c.Name)+".class")
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Files without the class suffix are ignored.
	if err := os.WriteFile(filepath.Join(classes, "README"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ix, err := BuildIndex([]string{classes}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ix.Types) != 2 {
		t.Fatalf("index has %d types, want 2", len(ix.Types))
	}

	path := filepath.Join(dir, "platform.cbor")
	if err := ix.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := LoadIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.Types, ix.Types) {
		t.Errorf("loaded index differs:\n got %+v\nwant %+v", back.Types, ix.Types)
	}
	shape, err := back.Lookup("demo/Shape")
	if err != nil || !shape.Interface {
		t.Errorf("demo/Shape = %+v, %v", shape, err)
	}

	p := &PlatformProvider{Index: back}
	c := NewComputer(p, true)
	if got, err := c.CommonAncestor("demo/Base", "demo/Shape"); err != nil || got != "demo/Shape" {
		t.Errorf("CommonAncestor via index = %s, %v", got, err)
	}
}

func TestPlatformClasspathScan(t *testing.T) {
	dir := t.TempDir()
	data, err := classfile.Write(class("ext/Thing", "java/lang/Number", false), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "ext"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ext", "Thing.class"), data, 0644); err != nil {
		t.Fatal(err)
	}
	c := NewComputer(&PlatformProvider{Classpath: []string{dir}}, true)
	got, err := c.CommonAncestor("ext/Thing", "java/lang/Integer")
	if err != nil {
		t.Fatal(err)
	}
	if got != "java/lang/Number" {
		t.Errorf("got %s, want java/lang/Number", got)
	}
}
