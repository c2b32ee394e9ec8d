// Package jar reads and writes class archives (jar, zip, jmod).
package jar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"bcdiff/internal/classfile"
)

// ErrNotArchive is returned when the input is not a zip container.
var ErrNotArchive = errors.New("jar: not a zip archive")

// DefaultNativeSuffixes name native libraries that may start with the class
// file magic (Mach-O universal binaries do) but are never classes.
var DefaultNativeSuffixes = []string{".jnilib", ".dylib"}

// jmodMagic prefixes the zip payload of a JDK .jmod file.
var jmodMagic = []byte{'J', 'M', 1, 0}

// Options controls entry classification.
type Options struct {
	NativeSuffixes []string // nil means DefaultNativeSuffixes
}

func (o Options) suffixes() []string {
	if o.NativeSuffixes == nil {
		return DefaultNativeSuffixes
	}
	return o.NativeSuffixes
}

// IsNative reports whether name carries one of the native library suffixes.
func (o Options) IsNative(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range o.suffixes() {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// IsClass reports whether an entry holds bytecode: its content starts with
// the class file magic and its name is not a native library.
func (o Options) IsClass(name string, data []byte) bool {
	return classfile.IsClassFile(data) && !o.IsNative(name)
}

// Entry is one archive member.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
	Method   uint16 // zip compression method, kept for resources
	Dir      bool
	Class    bool
}

// Archive is an in-memory archive. Entries keep their original order.
type Archive struct {
	Entries []*Entry
}

// Open reads the archive at path. JDK .jmod files are accepted.
func Open(path string, opts Options) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jar: %w", err)
	}
	data = bytes.TrimPrefix(data, jmodMagic)
	a, err := Read(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Read loads every entry of the zip container in r.
func Read(r io.ReaderAt, size int64, opts Options) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	a := &Archive{Entries: make([]*Entry, 0, len(zr.File))}
	for _, f := range zr.File {
		e := &Entry{
			Name:     f.Name,
			Modified: f.Modified,
			Method:   f.Method,
			Dir:      f.FileInfo().IsDir(),
		}
		if !e.Dir {
			if e.Data, err = readFile(f); err != nil {
				return nil, fmt.Errorf("jar: %s: %w", f.Name, err)
			}
			e.Class = opts.IsClass(e.Name, e.Data)
		}
		a.Entries = append(a.Entries, e)
	}
	return a, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Lookup returns the entry called name.
func (a *Archive) Lookup(name string) (*Entry, bool) {
	for _, e := range a.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Classes returns the bytecode entries keyed by entry name.
func (a *Archive) Classes() map[string]*Entry {
	m := map[string]*Entry{}
	for _, e := range a.Entries {
		if e.Class {
			m[e.Name] = e
		}
	}
	return m
}

// Sort orders entries META-INF/ first, the manifest leading, then by name.
// Output archives are sorted so that their layout does not depend on the
// order work finished in.
func (a *Archive) Sort() {
	rank := func(name string) int {
		switch {
		case name == "META-INF/":
			return 0
		case name == "META-INF/MANIFEST.MF":
			return 1
		case strings.HasPrefix(name, "META-INF/"):
			return 2
		}
		return 3
	}
	sort.SliceStable(a.Entries, func(i, j int) bool {
		ri, rj := rank(a.Entries[i].Name), rank(a.Entries[j].Name)
		if ri != rj {
			return ri < rj
		}
		return a.Entries[i].Name < a.Entries[j].Name
	})
}

// Write streams the archive as a zip container.
func (a *Archive) Write(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, e := range a.Entries {
		h := &zip.FileHeader{Name: e.Name, Modified: e.Modified, Method: e.Method}
		if e.Dir {
			h.Method = zip.Store
		} else if e.Class {
			h.Method = zip.Deflate
		}
		fw, err := zw.CreateHeader(h)
		if err != nil {
			return fmt.Errorf("jar: %s: %w", e.Name, err)
		}
		if !e.Dir {
			if _, err := fw.Write(e.Data); err != nil {
				return fmt.Errorf("jar: %s: %w", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("jar: %w", err)
	}
	return nil
}

// WriteFile writes the archive to path.
func (a *Archive) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jar: %w", err)
	}
	if err := a.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
