package delta

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bcdiff/internal/asm"
	"bcdiff/internal/classfile"
	"bcdiff/internal/hierarchy"
	"bcdiff/internal/jar"
	"bcdiff/internal/udiff"
)

// ApplyOptions controls patch application.
type ApplyOptions struct {
	// Provider resolves types that are neither in the original archive nor
	// produced by the patch, usually a hierarchy.PlatformProvider.
	Provider hierarchy.Provider
	Strict   bool
	Workers  int
}

// Stats counts what Apply did.
type Stats struct {
	Added, Modified, Deleted int
	Entries                  int // entries in the output archive
}

func (s Stats) Patched() int { return s.Added + s.Modified }

// outcome is the result of one block.
type outcome struct {
	header Header
	class  *classfile.Class
	data   []byte
}

// Apply patches the classes of orig and returns the new archive. Blocks are
// patched and assembled independently; when several blocks name the same
// path the last one wins. Entries the patch does not name are copied.
func Apply(orig *jar.Archive, patch []string, opts ApplyOptions) (*jar.Archive, Stats, error) {
	blocks := SplitBlocks(patch)
	origClasses := orig.Classes()
	outcomes := make([]*outcome, len(blocks))
	n := workers(opts.Workers)

	// Patch and assemble.
	g := new(errgroup.Group)
	g.SetLimit(n)
	for i, block := range blocks {
		g.Go(func() error {
			o, err := assembleBlock(block, origClasses)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	final := map[string]*outcome{}
	var order []string
	for _, o := range outcomes {
		path := o.header.Path()
		if _, seen := final[path]; seen {
			log().Infof("%s: patched more than once; the last block wins", path)
		} else {
			order = append(order, path)
		}
		final[path] = o
	}

	// The type map must be complete before any frame is computed.
	types := hierarchy.MapProvider{}
	for _, e := range origClasses {
		c, err := classfile.ParseHeader(e.Data)
		if err != nil {
			return nil, Stats{}, &PatchError{e.Name, err}
		}
		types.Add(c)
	}
	for _, path := range order {
		o := final[path]
		if o.header.Kind() == BlockDeleted {
			if e, ok := origClasses[path]; ok {
				if c, err := classfile.ParseHeader(e.Data); err == nil {
					delete(types, c.Name)
				}
			}
			continue
		}
		types.Add(o.class)
	}
	computer := hierarchy.NewComputer(hierarchy.Chain(types, opts.Provider), opts.Strict)

	// Serialize.
	g = new(errgroup.Group)
	g.SetLimit(n)
	for _, path := range order {
		o := final[path]
		if o.class == nil {
			continue
		}
		g.Go(func() error {
			data, err := classfile.Write(o.class, computer.CommonAncestor)
			if err != nil {
				return &PatchError{path, err}
			}
			o.data = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	out, stats := merge(orig, order, final)
	return out, stats, nil
}

func assembleBlock(block []string, origClasses map[string]*jar.Entry) (*outcome, error) {
	h, err := ParseHeader(block)
	if err != nil {
		return nil, err
	}
	o := &outcome{header: h}
	path := h.Path()

	var baseline []string
	switch h.Kind() {
	case BlockRenamed:
		return nil, &PatchError{path, fmt.Errorf("%w: %s -> %s", ErrRenameUnsupported, h.From, h.To)}
	case BlockDeleted:
		return o, nil
	case BlockModified:
		e, ok := origClasses[path]
		if !ok {
			return nil, &PatchError{path, ErrNoBaseline}
		}
		if baseline, err = Baseline(e.Data); err != nil {
			return nil, &PatchError{path, err}
		}
	}

	text, err := udiff.Apply(block, baseline)
	if err != nil {
		return nil, &PatchError{path, err}
	}
	if o.class, err = asm.Assemble(text); err != nil {
		return nil, &PatchError{path, err}
	}
	return o, nil
}

// merge builds the output archive from the untouched entries of orig and
// the patch outcomes, ordered META-INF/ first and then by name.
func merge(orig *jar.Archive, order []string, final map[string]*outcome) (*jar.Archive, Stats) {
	var stats Stats
	var stamp time.Time
	out := &jar.Archive{}
	for _, e := range orig.Entries {
		if e.Modified.After(stamp) {
			stamp = e.Modified
		}
		o, ok := final[e.Name]
		if !ok {
			out.Entries = append(out.Entries, e)
			continue
		}
		switch o.header.Kind() {
		case BlockDeleted:
			stats.Deleted++
		default:
			stats.Modified++
			out.Entries = append(out.Entries, &jar.Entry{
				Name:     e.Name,
				Data:     o.data,
				Modified: e.Modified,
				Class:    true,
			})
		}
		delete(final, e.Name)
	}
	for _, path := range order {
		o, ok := final[path]
		if !ok {
			continue
		}
		if o.header.Kind() == BlockDeleted {
			log().Warningf("%s: deleted by the patch but not in the archive", path)
			continue
		}
		stats.Added++
		out.Entries = append(out.Entries, &jar.Entry{Name: path, Data: o.data, Modified: stamp, Class: true})
	}
	out.Sort()
	stats.Entries = len(out.Entries)
	return out, stats
}
