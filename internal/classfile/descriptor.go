package classfile

import (
	"fmt"
	"strings"
)

// SplitMethodDesc splits a method descriptor into parameter descriptors and
// the return descriptor.
func SplitMethodDesc(desc string) (params []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("classfile: malformed method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("classfile: method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("classfile: method descriptor %q: missing ')'", desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		if n, err := fieldDescLen(ret); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("classfile: method descriptor %q: bad return type", desc)
		}
	}
	return params, ret, nil
}

// fieldDescLen returns the length of the field descriptor at the start of s.
func fieldDescLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated descriptor")
	}
	switch s[i] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class descriptor")
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("unknown descriptor character %q", s[i])
}

// ValidFieldDesc reports whether desc is exactly one field descriptor.
func ValidFieldDesc(desc string) bool {
	n, err := fieldDescLen(desc)
	return err == nil && n == len(desc)
}

// DescSize returns the number of local/stack slots a value of desc occupies.
func DescSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V":
		return 0
	}
	return 1
}

// ArgsSize returns the slot count of a method's parameters, including the
// receiver when the method is not static.
func ArgsSize(desc string, static bool) (int, error) {
	params, _, err := SplitMethodDesc(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	if !static {
		n = 1
	}
	for _, p := range params {
		n += DescSize(p)
	}
	return n, nil
}

// IsWide reports whether desc is a two-slot type.
func IsWide(desc string) bool { return desc == "J" || desc == "D" }
