package ir

import (
	"fmt"
	"strconv"
	"strings"

	"bcdiff/internal/classfile"
)

type flagWord struct {
	word string
	bit  int
}

var fieldFlags = []flagWord{
	{"PUBLIC", classfile.AccPublic},
	{"PRIVATE", classfile.AccPrivate},
	{"PROTECTED", classfile.AccProtected},
	{"STATIC", classfile.AccStatic},
	{"FINAL", classfile.AccFinal},
	{"VOLATILE", classfile.AccVolatile},
	{"TRANSIENT", classfile.AccTransient},
	{"SYNTHETIC", classfile.AccSynthetic},
	{"ENUM", classfile.AccEnum},
}

var methodFlags = []flagWord{
	{"PUBLIC", classfile.AccPublic},
	{"PRIVATE", classfile.AccPrivate},
	{"PROTECTED", classfile.AccProtected},
	{"STATIC", classfile.AccStatic},
	{"FINAL", classfile.AccFinal},
	{"SYNCHRONIZED", classfile.AccSynchronized},
	{"BRIDGE", classfile.AccBridge},
	{"VARARGS", classfile.AccVarargs},
	{"NATIVE", classfile.AccNative},
	{"ABSTRACT", classfile.AccAbstract},
	{"STRICTFP", classfile.AccStrict},
	{"SYNTHETIC", classfile.AccSynthetic},
}

func formatFlags(table []flagWord, access int) []string {
	var words []string
	for _, f := range table {
		if access&f.bit != 0 {
			words = append(words, f.word)
			access &^= f.bit
		}
	}
	if access != 0 {
		words = append(words, fmt.Sprintf("0x%04X", access))
	}
	return words
}

func parseFlag(table []flagWord, word string) (int, error) {
	if strings.HasPrefix(word, "0x") {
		v, err := strconv.ParseUint(word[2:], 16, 16)
		if err != nil {
			return 0, fmt.Errorf("bad access bits %q", word)
		}
		return int(v), nil
	}
	for _, f := range table {
		if strings.EqualFold(f.word, word) {
			return f.bit, nil
		}
	}
	return 0, fmt.Errorf("unknown access modifier %q", word)
}

// FieldAccessWords renders field access flags as modifier words. Bits with
// no word are kept as one hexadecimal token.
func FieldAccessWords(access int) []string { return formatFlags(fieldFlags, access) }

// MethodAccessWords renders method access flags as modifier words.
func MethodAccessWords(access int) []string { return formatFlags(methodFlags, access) }

// ParseFieldFlag maps one field modifier word to its bit.
func ParseFieldFlag(word string) (int, error) { return parseFlag(fieldFlags, word) }

// ParseMethodFlag maps one method modifier word to its bit.
func ParseMethodFlag(word string) (int, error) { return parseFlag(methodFlags, word) }
