package delta

import (
	"fmt"
	"strings"

	"bcdiff/internal/udiff"
)

// BlockKind classifies a patch block by its header paths.
type BlockKind int

const (
	BlockModified BlockKind = iota
	BlockNew
	BlockDeleted
	BlockRenamed
)

func (k BlockKind) String() string {
	switch k {
	case BlockNew:
		return "new"
	case BlockDeleted:
		return "deleted"
	case BlockRenamed:
		return "renamed"
	}
	return "modified"
}

// Header holds the two paths named by a block's "---" and "+++" lines.
type Header struct {
	From, To string
}

func (h Header) Kind() BlockKind {
	switch {
	case h.From == udiff.NullPath:
		return BlockNew
	case h.To == udiff.NullPath:
		return BlockDeleted
	case h.From != h.To:
		return BlockRenamed
	}
	return BlockModified
}

// Path is the archive entry the block affects.
func (h Header) Path() string {
	if h.Kind() == BlockDeleted {
		return h.From
	}
	return h.To
}

// headerPath strips the marker and any tab-separated timestamp.
func headerPath(line, marker string) (string, bool) {
	rest, ok := strings.CutPrefix(line, marker)
	if !ok {
		return "", false
	}
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// ParseHeader reads the file header pair that opens a block.
func ParseHeader(block []string) (Header, error) {
	if len(block) < 2 {
		return Header{}, fmt.Errorf("delta: block of %d lines has no file header", len(block))
	}
	from, ok := headerPath(block[0], "--- ")
	if !ok {
		return Header{}, fmt.Errorf("delta: bad original header %q", block[0])
	}
	to, ok := headerPath(block[1], "+++ ")
	if !ok {
		return Header{}, fmt.Errorf("delta: bad revised header %q", block[1])
	}
	if from == udiff.NullPath && to == udiff.NullPath {
		return Header{}, fmt.Errorf("delta: block names %s on both sides", udiff.NullPath)
	}
	return Header{From: from, To: to}, nil
}

// SplitBlocks cuts a multi-class patch into one block per class. Lines
// starting with '#' and blank lines are dropped, and so is any preamble
// before the first "--- " header.
func SplitBlocks(patch []string) [][]string {
	var blocks [][]string
	var cur []string
	for _, ln := range patch {
		switch {
		case ln == "" || ln[0] == '#':
			continue
		case strings.HasPrefix(ln, "--- "):
			if len(cur) > 0 {
				blocks = append(blocks, cur)
			}
			cur = []string{ln}
		case cur != nil:
			cur = append(cur, ln)
		}
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}
