package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"bcdiff/internal/classfile"
)

var shortEscapes = map[rune]byte{
	'\b': 'b',
	'\t': 't',
	'\n': 'n',
	'\f': 'f',
	'\r': 'r',
	'"':  '"',
	'\\': '\\',
}

var shortUnescapes = map[byte]rune{
	'b':  '\b',
	't':  '\t',
	'n':  '\n',
	'f':  '\f',
	'r':  '\r',
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
}

// Escape makes s safe to embed between double quotes on one line.
// Non-printable characters become \uXXXX escapes, using a surrogate pair
// outside the basic multilingual plane. A lone surrogate held as WTF-8 is
// escaped on its own.
func Escape(s string) string {
	var b strings.Builder
	for len(s) > 0 {
		r, n := classfile.DecodeWTF8Rune(s)
		s = s[n:]
		if c, ok := shortEscapes[r]; ok {
			b.WriteByte('\\')
			b.WriteByte(c)
			continue
		}
		if !unicode.IsPrint(r) {
			if r1, r2 := utf16.EncodeRune(r); r1 != unicode.ReplacementChar {
				fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape reverses Escape. Unknown escapes keep their backslash.
func Unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		if r, ok := shortUnescapes[s[i]]; ok {
			b.WriteRune(r)
			continue
		}
		if s[i] != 'u' {
			b.WriteByte('\\')
			b.WriteByte(s[i])
			continue
		}
		r, err := hex4(s, i+1)
		if err != nil {
			return "", err
		}
		i += 4
		if utf16.IsSurrogate(r) && strings.HasPrefix(s[i+1:], `\u`) {
			if r2, err := hex4(s, i+3); err == nil {
				if d := utf16.DecodeRune(r, r2); d != unicode.ReplacementChar {
					r = d
					i += 6
				}
			}
		}
		b.Write(classfile.AppendWTF8(nil, r))
	}
	return b.String(), nil
}

func hex4(s string, at int) (rune, error) {
	if at+4 > len(s) {
		return 0, fmt.Errorf("truncated \\u escape in %q", s)
	}
	v, err := strconv.ParseUint(s[at:at+4], 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad \\u escape %q", s[at:at+4])
	}
	return rune(v), nil
}

// Quote escapes s and wraps it in double quotes.
func Quote(s string) string { return `"` + Escape(s) + `"` }

// Unquote strips the double quotes from tok and unescapes the content.
func Unquote(tok string) (string, error) {
	if len(tok) < 2 || tok[0] != '"' || tok[len(tok)-1] != '"' {
		return "", fmt.Errorf("expected quoted string, got %s", tok)
	}
	return Unescape(tok[1 : len(tok)-1])
}
