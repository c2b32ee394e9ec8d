// Package udiff produces and applies line-oriented unified diffs.
package udiff

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/pmezard/go-difflib/difflib"
)

// NullPath stands for the missing side of an added or deleted file.
const NullPath = "/dev/null"

// ErrPatchMismatch is returned when a patch does not fit its baseline.
var ErrPatchMismatch = errors.New("udiff: patch does not match baseline")

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// Unified returns the unified diff that turns a into b, headed by
// "--- fromName" and "+++ toName". It is empty when a and b are equal.
func Unified(fromName, toName string, a, b []string, context int) ([]string, error) {
	if context < 0 {
		return nil, fmt.Errorf("udiff: negative context %d", context)
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(a),
		B:        terminate(b),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	})
	if err != nil {
		return nil, fmt.Errorf("udiff: %w", err)
	}
	if text == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

// Apply applies a single-file diff block to baseline and returns the
// patched lines. A hunk whose context or removed lines disagree with the
// baseline fails with ErrPatchMismatch.
//
// Hunks are applied here rather than with gitdiff.Apply: a hunk that removes
// nothing ("@@ -N,0 ...") inserts after line N, which gitdiff.Apply places
// before it.
func Apply(block []string, baseline []string) ([]string, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(strings.Join(block, "\n") + "\n"))
	if err != nil {
		return nil, fmt.Errorf("udiff: parse: %w", err)
	}
	if len(files) != 1 {
		return nil, fmt.Errorf("udiff: block describes %d files, want 1", len(files))
	}
	if files[0].IsBinary {
		return nil, fmt.Errorf("udiff: binary patch")
	}

	var out []string
	pos := 0
	for _, frag := range files[0].TextFragments {
		if err := frag.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPatchMismatch, err)
		}
		start := int(frag.OldPosition)
		if frag.OldLines > 0 {
			start--
		}
		if start < pos || start > len(baseline) {
			return nil, fmt.Errorf("%w: hunk at line %d is out of order or past the end", ErrPatchMismatch, frag.OldPosition)
		}
		out = append(out, baseline[pos:start]...)
		pos = start
		for _, l := range frag.Lines {
			text := strings.TrimSuffix(l.Line, "\n")
			switch l.Op {
			case gitdiff.OpAdd:
				out = append(out, text)
				continue
			case gitdiff.OpContext:
				out = append(out, text)
			}
			if pos >= len(baseline) || baseline[pos] != text {
				return nil, fmt.Errorf("%w: line %d: expected %q", ErrPatchMismatch, pos+1, text)
			}
			pos++
		}
	}
	out = append(out, baseline[pos:]...)
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
