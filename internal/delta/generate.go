package delta

import (
	"strings"

	"golang.org/x/sync/errgroup"

	"bcdiff/internal/jar"
	"bcdiff/internal/udiff"
)

// GenerateOptions controls patch generation.
type GenerateOptions struct {
	Context  int      // unchanged lines around each hunk
	Prefixes []string // only entries under one of these prefixes; empty means all
	Workers  int      // 0 means GOMAXPROCS
}

func (o GenerateOptions) allowed(name string) bool {
	if len(o.Prefixes) == 0 {
		return true
	}
	for _, p := range o.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Change pairs a class entry with what happened to it between two archives.
type Change struct {
	Path string
	Kind BlockKind // BlockNew, BlockDeleted or BlockModified
}

// Classify matches the class entries of two archives by entry name. Classes
// of orig come first in archive order, each either deleted or compared; the
// classes only rev has follow in its archive order. Every allowed class
// appears exactly once.
func Classify(orig, rev *jar.Archive, opts GenerateOptions) []Change {
	remaining := rev.Classes()
	var changes []Change
	for _, e := range orig.Entries {
		if !e.Class || !opts.allowed(e.Name) {
			continue
		}
		if _, ok := remaining[e.Name]; ok {
			delete(remaining, e.Name)
			changes = append(changes, Change{e.Name, BlockModified})
		} else {
			changes = append(changes, Change{e.Name, BlockDeleted})
		}
	}
	for _, e := range rev.Entries {
		if _, ok := remaining[e.Name]; ok && opts.allowed(e.Name) {
			changes = append(changes, Change{e.Name, BlockNew})
		}
	}
	return changes
}

// Generate returns the patch that turns the classes of orig into those of
// rev. Unchanged classes contribute nothing. Resources are not diffed.
func Generate(orig, rev *jar.Archive, opts GenerateOptions) ([]string, error) {
	changes := Classify(orig, rev, opts)
	origClasses, revClasses := orig.Classes(), rev.Classes()

	blocks := make([][]string, len(changes))
	g := new(errgroup.Group)
	g.SetLimit(workers(opts.Workers))
	for i, ch := range changes {
		g.Go(func() error {
			var a, b []string
			from, to := ch.Path, ch.Path
			var err error
			if ch.Kind == BlockNew {
				from = udiff.NullPath
			} else if a, err = Baseline(origClasses[ch.Path].Data); err != nil {
				return &PatchError{ch.Path, err}
			}
			if ch.Kind == BlockDeleted {
				to = udiff.NullPath
			} else if b, err = Baseline(revClasses[ch.Path].Data); err != nil {
				return &PatchError{ch.Path, err}
			}
			block, err := udiff.Unified(from, to, a, b, opts.Context)
			if err != nil {
				return &PatchError{ch.Path, err}
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out, nil
}
