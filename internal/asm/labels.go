package asm

import (
	"fmt"
	"sort"
	"strings"

	"bcdiff/internal/classfile"
)

// labels maps label names to placeholders for one method. A label exists
// from its first reference; placing it is separate.
type labels struct {
	byName  map[string]*classfile.Label
	firstAt map[string]int
	placed  map[string]bool
}

func newLabels() *labels {
	return &labels{
		byName:  map[string]*classfile.Label{},
		firstAt: map[string]int{},
		placed:  map[string]bool{},
	}
}

func validLabel(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t:[],")
}

// ref returns the label called name, creating it on first use.
func (t *labels) ref(name string, line int) (*classfile.Label, error) {
	if !validLabel(name) {
		return nil, fmt.Errorf("bad label %q", name)
	}
	l, ok := t.byName[name]
	if !ok {
		l = &classfile.Label{}
		t.byName[name] = l
		t.firstAt[name] = line
	}
	return l, nil
}

// place marks name as declared at the current position.
func (t *labels) place(name string, line int) (*classfile.Label, error) {
	if t.placed[name] {
		return nil, fmt.Errorf("label %s declared twice", name)
	}
	l, err := t.ref(name, line)
	if err != nil {
		return nil, err
	}
	t.placed[name] = true
	return l, nil
}

// dangling returns the names referenced but never placed, in order of
// first reference.
func (t *labels) dangling() []string {
	var out []string
	for name := range t.byName {
		if !t.placed[name] {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.firstAt[out[i]] < t.firstAt[out[j]] })
	return out
}
