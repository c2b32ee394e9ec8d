// Package delta generates and applies structural patches between two class
// archives. Each class is rendered to IR text, so a patch is a sequence of
// per-class unified diffs that a reviewer can read and edit.
package delta

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"

	"bcdiff/internal/classfile"
	"bcdiff/internal/disasm"
)

func log() commonlog.Logger { return commonlog.GetLogger("bcdiff.delta") }

var (
	// ErrRenameUnsupported is returned for a block whose two paths differ.
	ErrRenameUnsupported = errors.New("delta: renaming classes is not implemented")

	// ErrNoBaseline is returned when a modified block names a path that is
	// not a class in the original archive.
	ErrNoBaseline = errors.New("delta: no baseline class")
)

// PatchError reports the block that failed.
type PatchError struct {
	Path string
	Err  error
}

func (e *PatchError) Error() string { return fmt.Sprintf("delta: %s: %v", e.Path, e.Err) }
func (e *PatchError) Unwrap() error { return e.Err }

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Baseline renders a class file as the IR text patches are written against.
// Debug attributes are skipped so that line number churn does not show up
// as a change.
func Baseline(data []byte) ([]string, error) {
	c, err := classfile.Parse(data, classfile.ReadOptions{SkipDebug: true})
	if err != nil {
		return nil, err
	}
	return disasm.Render(c)
}
