package ir

import (
	"fmt"
	"strings"

	"bcdiff/internal/classfile"
)

const handlePrefix = "handle["

var handleKinds = func() map[string]int {
	m := make(map[string]int, len(classfile.HandleKindNames))
	for k, name := range classfile.HandleKindNames {
		m[name] = k
	}
	return m
}()

// FormatHandle renders h as handle[H_KIND owner.name(desc)ret] for methods
// or handle[H_KIND owner.name desc] for fields, with a trailing itf token
// when the reference is to an interface.
func FormatHandle(h classfile.Handle) string {
	var b strings.Builder
	b.WriteString(handlePrefix)
	b.WriteString(classfile.HandleKindNames[h.Kind])
	b.WriteByte(' ')
	b.WriteString(h.Owner)
	b.WriteByte('.')
	b.WriteString(h.Name)
	if classfile.IsFieldHandle(h.Kind) {
		b.WriteByte(' ')
	}
	b.WriteString(h.Desc)
	if h.Itf {
		b.WriteString(" " + Itf)
	}
	b.WriteByte(']')
	return b.String()
}

// ParseHandle parses the output of FormatHandle. H_INVOKEINTERFACE handles
// are always interface references.
func ParseHandle(tok string) (classfile.Handle, error) {
	var h classfile.Handle
	if !strings.HasPrefix(tok, handlePrefix) || !strings.HasSuffix(tok, "]") {
		return h, fmt.Errorf("expected handle[...], got %q", tok)
	}
	fields := strings.Fields(tok[len(handlePrefix) : len(tok)-1])
	if n := len(fields); n > 0 && fields[n-1] == Itf {
		h.Itf = true
		fields = fields[:n-1]
	}
	if len(fields) < 2 {
		return h, fmt.Errorf("short handle %q", tok)
	}
	kind, ok := handleKinds[fields[0]]
	if !ok {
		return h, fmt.Errorf("unknown handle kind %q", fields[0])
	}
	h.Kind = kind
	owner, member, ok := strings.Cut(fields[1], ".")
	if !ok {
		return h, fmt.Errorf("handle reference %q has no owner", fields[1])
	}
	h.Owner = owner

	if classfile.IsFieldHandle(kind) {
		if len(fields) != 3 || !classfile.ValidFieldDesc(fields[2]) {
			return h, fmt.Errorf("field handle %q needs owner.name desc", tok)
		}
		h.Name, h.Desc = member, fields[2]
		return h, nil
	}
	if len(fields) != 2 {
		return h, fmt.Errorf("method handle %q has extra tokens", tok)
	}
	var err error
	if h.Name, h.Desc, err = SplitMethodRef(member); err != nil {
		return h, err
	}
	if kind == classfile.H_INVOKEINTERFACE {
		h.Itf = true
	}
	return h, nil
}

// SplitMethodRef splits name(desc)ret into the name and the descriptor.
func SplitMethodRef(ref string) (name, desc string, err error) {
	i := strings.IndexByte(ref, '(')
	if i <= 0 {
		return "", "", fmt.Errorf("method reference %q has no descriptor", ref)
	}
	if _, _, err := classfile.SplitMethodDesc(ref[i:]); err != nil {
		return "", "", err
	}
	return ref[:i], ref[i:], nil
}
