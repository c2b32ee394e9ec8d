package udiff

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func lines(s string) []string { return strings.Split(s, "\n") }

func TestUnifiedEqualIsEmpty(t *testing.T) {
	a := lines("one\ntwo\nthree")
	got, err := Unified("x", "x", a, a, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d lines, want none: %q", len(got), got)
	}
}

func TestUnifiedHeader(t *testing.T) {
	a := lines("one\ntwo\nthree")
	b := lines("one\n2\nthree")
	got, err := Unified("demo/A.class", "demo/A.class", a, b, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"--- demo/A.class",
		"+++ demo/A.class",
		"@@ -1,3 +1,3 @@",
		" one",
		"-two",
		"+2",
		" three",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		ctx  int
	}{
		{"modify", lines("a\nb\nc\nd\ne\nf\ng"), lines("a\nB\nc\nd\ne\nf\ng\nh"), 3},
		{"two hunks", lines("a\nb\nc\nd\ne\nf\ng\nh\ni"), lines("a\nx\nc\nd\ne\nf\ng\nh\ny"), 1},
		{"added", nil, lines(".VERSION 52\n.NAME demo/B"), 3},
		{"deleted", lines(".VERSION 52\n.NAME demo/B"), nil, 3},
		{"indented", lines("    ALOAD this\n    RETURN"), lines("    ALOAD this\n    POP\n    RETURN"), 2},
		{"insert without context", lines("a\nb\nc\nd"), lines("a\nb\nX\nc\nd"), 0},
		{"insert at start without context", lines("a\nb\nc\nd"), lines("X\na\nb\nc\nd"), 0},
		{"insert at end without context", lines("a\nb\nc\nd"), lines("a\nb\nc\nd\nX"), 0},
		{"remove without context", lines("a\nb\nc\nd"), lines("a\nd"), 0},
		{"mixed without context", lines("a\nb\nc\nd\ne\nf"), lines("Z\na\nB\nc\nd\nf\ng"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := "demo/B.class", "demo/B.class"
			if tt.a == nil {
				from = NullPath
			}
			if tt.b == nil {
				to = NullPath
			}
			block, err := Unified(from, to, tt.a, tt.b, tt.ctx)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Apply(block, tt.a)
			if err != nil {
				t.Fatalf("apply: %v\n%s", err, strings.Join(block, "\n"))
			}
			if len(got) != len(tt.b) || (len(got) > 0 && !reflect.DeepEqual(got, tt.b)) {
				t.Errorf("got %q, want %q", got, tt.b)
			}
		})
	}
}

func TestApplyPureInsertion(t *testing.T) {
	block := []string{
		"--- x",
		"+++ x",
		"@@ -2,0 +3 @@",
		"+X",
	}
	got, err := Apply(block, lines("a\nb\nc\nd"))
	if err != nil {
		t.Fatal(err)
	}
	if want := lines("a\nb\nX\nc\nd"); !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyOverlappingHunks(t *testing.T) {
	block := []string{
		"--- x",
		"+++ x",
		"@@ -2 +2 @@",
		"-b",
		"+B",
		"@@ -1 +1 @@",
		"-a",
		"+A",
	}
	if _, err := Apply(block, lines("a\nb")); !errors.Is(err, ErrPatchMismatch) {
		t.Errorf("got %v, want ErrPatchMismatch", err)
	}
}

func TestApplyMismatch(t *testing.T) {
	a := lines("one\ntwo\nthree")
	b := lines("one\n2\nthree")
	block, err := Unified("x", "x", a, b, 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Apply(block, lines("one\nTWO\nthree"))
	if !errors.Is(err, ErrPatchMismatch) {
		t.Errorf("got %v, want ErrPatchMismatch", err)
	}
}
