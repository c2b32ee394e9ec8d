package classfile

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Strings in the tree are UTF-8, except that an unpaired UTF-16 surrogate
// is kept as its three-byte generalized UTF-8 form (WTF-8), so that every
// CONSTANT_Utf8 value survives a parse/write cycle.

// AppendWTF8 appends the UTF-8 encoding of r to b. Surrogates, which
// utf8.AppendRune would replace, are written as WTF-8.
func AppendWTF8(b []byte, r rune) []byte {
	if utf16.IsSurrogate(r) {
		return append(b, byte(0xe0|r>>12), byte(0x80|(r>>6)&0x3f), byte(0x80|r&0x3f))
	}
	return utf8.AppendRune(b, r)
}

// DecodeWTF8Rune is utf8.DecodeRuneInString that also accepts the WTF-8 form
// of a lone surrogate, returning the surrogate code point.
func DecodeWTF8Rune(s string) (rune, int) {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && n == 1 && len(s) >= 3 &&
		s[0] == 0xed && s[1]&0xe0 == 0xa0 && s[2]&0xc0 == 0x80 {
		return rune(s[0]&0x0f)<<12 | rune(s[1]&0x3f)<<6 | rune(s[2]&0x3f), 3
	}
	return r, n
}

// decodeMUTF8 decodes the modified UTF-8 used by CONSTANT_Utf8 entries.
func decodeMUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) {
				return "", fmt.Errorf("%w: modified UTF-8 at byte %d", ErrTruncated, i)
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) {
				return "", fmt.Errorf("%w: modified UTF-8 at byte %d", ErrTruncated, i)
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", fmt.Errorf("classfile: invalid modified UTF-8 byte 0x%02x", c)
		}
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(units); i++ {
		r := rune(units[i])
		if utf16.IsSurrogate(r) && r < 0xdc00 && i+1 < len(units) {
			if d := utf16.DecodeRune(r, rune(units[i+1])); d != utf8.RuneError {
				out = utf8.AppendRune(out, d)
				i++
				continue
			}
		}
		out = AppendWTF8(out, r)
	}
	return string(out), nil
}

// encodeMUTF8 encodes s as modified UTF-8. Lone surrogates stored as WTF-8
// are written back unchanged.
func encodeMUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	unit := func(u uint16) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, byte(0xc0|u>>6), byte(0x80|u&0x3f))
		default:
			out = append(out, byte(0xe0|u>>12), byte(0x80|(u>>6)&0x3f), byte(0x80|u&0x3f))
		}
	}
	for len(s) > 0 {
		r, n := DecodeWTF8Rune(s)
		s = s[n:]
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			unit(uint16(r1))
			unit(uint16(r2))
			continue
		}
		unit(uint16(r))
	}
	return out
}
