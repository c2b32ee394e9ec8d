package ir

import "strings"

// Fields splits a line on spaces, keeping bracketed groups and quoted
// strings together.
func Fields(s string) []string {
	return splitTop(s, " ")
}

// List splits the inside of a bracketed list on ", " separators at nesting
// depth zero.
func List(s string) []string {
	if s == "" {
		return nil
	}
	return splitTop(s, ", ")
}

// Bracketed returns the content of tok if it has the form prefix[...].
func Bracketed(tok, prefix string) (string, bool) {
	if !strings.HasPrefix(tok, prefix+"[") || !strings.HasSuffix(tok, "]") {
		return "", false
	}
	return tok[len(prefix)+1 : len(tok)-1], true
}

func splitTop(s, sep string) []string {
	var out []string
	depth := 0
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c == '\\' {
				i++
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
		case c == '[' && isGroupOpen(s, i):
			depth++
		case c == ']' && depth > 0:
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			if i > start {
				out = append(out, s[start:i])
			}
			i += len(sep) - 1
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Words that open a bracketed group. Any other '[' belongs to an array
// descriptor such as (I[J)V.
var groupWords = []string{"handle", "args", "mapping", "default", "range", "offsets"}

func isGroupOpen(s string, i int) bool {
	for _, w := range groupWords {
		if strings.HasSuffix(s[:i], w) {
			return true
		}
	}
	return false
}
