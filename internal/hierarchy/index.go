package hierarchy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"bcdiff/internal/classfile"
	"bcdiff/internal/jar"
)

// cborEncMode uses canonical encoding so that an index built twice from the
// same inputs is byte-identical.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("hierarchy: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Index is a persisted table of type hierarchy views, typically of a JDK's
// platform classes. It is a Provider.
type Index struct {
	Types map[string]TypeInfo `cbor:"1,keyasint"`
}

func (ix *Index) Lookup(name string) (TypeInfo, error) {
	if ti, ok := ix.Types[name]; ok {
		return ti, nil
	}
	return TypeInfo{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
}

// BuildIndex scans jars, jmods and class directories and records the
// header of every class found. Later paths override earlier ones. workers
// bounds the number of paths read at once; 0 means one per path.
func BuildIndex(paths []string, workers int) (*Index, error) {
	results := make([]map[string]TypeInfo, len(paths))
	g := new(errgroup.Group)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			types, err := scan(path)
			if err != nil {
				return err
			}
			results[i] = types
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := &Index{Types: map[string]TypeInfo{}}
	for _, types := range results {
		for name, ti := range types {
			ix.Types[name] = ti
		}
	}
	return ix, nil
}

func scan(path string) (map[string]TypeInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	types := map[string]TypeInfo{}
	add := func(name string, data []byte) error {
		c, err := classfile.ParseHeader(data)
		if err != nil {
			return fmt.Errorf("hierarchy: %s: %s: %w", path, name, err)
		}
		if c.Access&classfile.AccModule == 0 {
			types[c.Name] = Info(c)
		}
		return nil
	}

	if !st.IsDir() {
		a, err := jar.Open(path, jar.Options{})
		if err != nil {
			return nil, fmt.Errorf("hierarchy: %w", err)
		}
		for _, e := range a.Entries {
			// Multi-release variants share names with the base classes.
			if !e.Class || strings.HasPrefix(e.Name, "META-INF/") {
				continue
			}
			if err := add(e.Name, e.Data); err != nil {
				return nil, err
			}
		}
		return types, nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".class") {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return add(p, data)
	})
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	return types, nil
}

// Save writes the index to path as canonical CBOR.
func (ix *Index) Save(path string) error {
	data, err := cborEncMode.Marshal(ix)
	if err != nil {
		return fmt.Errorf("hierarchy: marshal index: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadIndex reads an index written by Save.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	var ix Index
	if err := cbor.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("hierarchy: unmarshal index %s: %w", path, err)
	}
	if ix.Types == nil {
		ix.Types = map[string]TypeInfo{}
	}
	return &ix, nil
}
