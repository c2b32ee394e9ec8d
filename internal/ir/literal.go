package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bcdiff/internal/classfile"
)

// Floating point specials. Doubles use the bare words; floats carry the F
// suffix like every other float literal.
const (
	infinity    = "Infinity"
	negInfinity = "-Infinity"
	nan         = "NaN"
)

// FormatConst renders a constant operand: int32, int64 (L), float32 (F),
// float64 (D), quoted string, class/array/method type descriptor, or handle.
func FormatConst(v any) (string, error) {
	switch v := v.(type) {
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10) + "L", nil
	case float32:
		f := float64(v)
		switch {
		case math.IsNaN(f):
			return nan + "F", nil
		case math.IsInf(f, 1):
			return infinity + "F", nil
		case math.IsInf(f, -1):
			return negInfinity + "F", nil
		}
		return strconv.FormatFloat(f, 'g', -1, 32) + "F", nil
	case float64:
		switch {
		case math.IsNaN(v):
			return nan, nil
		case math.IsInf(v, 1):
			return infinity, nil
		case math.IsInf(v, -1):
			return negInfinity, nil
		}
		return strconv.FormatFloat(v, 'g', -1, 64) + "D", nil
	case string:
		return Quote(v), nil
	case classfile.Type:
		return v.Desc, nil
	case classfile.Handle:
		return FormatHandle(v), nil
	}
	return "", fmt.Errorf("unsupported constant %T", v)
}

// ParseConst parses a constant operand written by FormatConst.
func ParseConst(tok string) (any, error) {
	if tok == "" {
		return nil, fmt.Errorf("empty constant")
	}
	switch {
	case tok[0] == '"':
		return Unquote(tok)
	case tok[0] == '(':
		if _, _, err := classfile.SplitMethodDesc(tok); err != nil {
			return nil, err
		}
		return classfile.Type{Desc: tok}, nil
	case tok[0] == '[':
		if !classfile.ValidFieldDesc(tok) {
			return nil, fmt.Errorf("bad array type %q", tok)
		}
		return classfile.Type{Desc: tok}, nil
	case strings.HasPrefix(tok, handlePrefix):
		return ParseHandle(tok)
	case tok[0] == 'L' && tok[len(tok)-1] == ';':
		return classfile.Type{Desc: tok}, nil
	}

	switch tok {
	case nan:
		return math.NaN(), nil
	case infinity:
		return math.Inf(1), nil
	case negInfinity:
		return math.Inf(-1), nil
	case nan + "F":
		return float32(math.NaN()), nil
	case infinity + "F":
		return float32(math.Inf(1)), nil
	case negInfinity + "F":
		return float32(math.Inf(-1)), nil
	}

	body := tok[:len(tok)-1]
	switch tok[len(tok)-1] {
	case 'L':
		v, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad long %q", tok)
		}
		return v, nil
	case 'F':
		v, err := strconv.ParseFloat(body, 32)
		if err != nil {
			return nil, fmt.Errorf("bad float %q", tok)
		}
		return float32(v), nil
	case 'D':
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return nil, fmt.Errorf("bad double %q", tok)
		}
		return v, nil
	}
	v, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad int %q", tok)
	}
	return int32(v), nil
}
