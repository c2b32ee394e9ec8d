// Package asm assembles IR text back into a class tree.
//
// Assembly is a single forward pass over the document. Directive lines set
// class attributes; .FIELD and .METHOD blocks are buffered until .END and
// parsed as a unit. Any line the grammar does not recognize fails the whole
// class with a SyntaxError: a partially understood method must never reach
// the class writer.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"bcdiff/internal/classfile"
	"bcdiff/internal/ir"
)

// SyntaxError reports a line the assembler could not understand. Line is
// the 0-based index of the line within the document.
type SyntaxError struct {
	Line int
	Text string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("asm: line %d: %s: %q", e.Line+1, e.Msg, strings.TrimSpace(e.Text))
}

// line is one document line with its index.
type line struct {
	n    int
	text string
}

func (l line) errorf(format string, args ...any) error {
	return &SyntaxError{Line: l.n, Text: l.text, Msg: fmt.Sprintf(format, args...)}
}

func (l line) wrap(err error) error {
	if _, ok := err.(*SyntaxError); ok {
		return err
	}
	return &SyntaxError{Line: l.n, Text: l.text, Msg: err.Error()}
}

type blockKind int

const (
	noBlock blockKind = iota
	fieldBlock
	methodBlock
)

// Assemble parses the IR document of exactly one class.
func Assemble(lines []string) (*classfile.Class, error) {
	c := &classfile.Class{}
	var (
		state     = noBlock
		block     []line
		sawMember bool
		sawName   bool
		sawVer    bool
	)
	for n, text := range lines {
		l := line{n: n, text: text}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}

		if state != noBlock {
			if trimmed != ir.End {
				block = append(block, l)
				continue
			}
			if len(block) == 0 {
				return nil, l.errorf("empty member block")
			}
			var err error
			if state == fieldBlock {
				var f *classfile.Field
				if f, err = parseField(block); err == nil {
					c.Fields = append(c.Fields, f)
				}
			} else {
				var m *classfile.Method
				if m, err = parseMethod(block); err == nil {
					c.Methods = append(c.Methods, m)
				}
			}
			if err != nil {
				return nil, err
			}
			state, block = noBlock, nil
			continue
		}

		fields := ir.Fields(stripComment(trimmed))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case ir.Field:
			state, sawMember = fieldBlock, true
			continue
		case ir.Method:
			state, sawMember = methodBlock, true
			continue
		case ir.End:
			return nil, l.errorf("%s outside a member block", ir.End)
		}
		if sawMember {
			return nil, l.errorf("directive after a member block")
		}
		if err := directive(c, fields); err != nil {
			return nil, l.wrap(err)
		}
		switch fields[0] {
		case ir.Name:
			sawName = true
		case ir.Version:
			sawVer = true
		}
	}

	if state != noBlock {
		return nil, &SyntaxError{Line: len(lines), Msg: "unterminated member block"}
	}
	if !sawName || !sawVer {
		return nil, fmt.Errorf("asm: document needs %s and %s", ir.Name, ir.Version)
	}
	return c, nil
}

// stripComment removes a trailing // comment outside quotes.
func stripComment(s string) string {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch {
		case quoted && s[i] == '\\':
			i++
		case s[i] == '"':
			quoted = !quoted
		case !quoted && strings.HasPrefix(s[i:], "//") && (i == 0 || s[i-1] == ' '):
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

func arity(fields []string, want int) error {
	if got := len(fields) - 1; got != want {
		return fmt.Errorf("%s takes %d operands, got %d", fields[0], want, got)
	}
	return nil
}

// nullableName maps the null token to the empty string.
func nullableName(tok string) string {
	if tok == ir.Null {
		return ""
	}
	return tok
}

func nullableQuoted(tok string) (*string, error) {
	if tok == ir.Null {
		return nil, nil
	}
	s, err := ir.Unquote(tok)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func directive(c *classfile.Class, f []string) error {
	var err error
	switch f[0] {
	case ir.Version:
		if err = arity(f, 1); err != nil {
			return err
		}
		v, perr := strconv.ParseUint(f[1], 10, 32)
		if perr != nil {
			return fmt.Errorf("bad version %q", f[1])
		}
		c.Version = uint32(v)
	case ir.Access:
		if err = arity(f, 1); err != nil {
			return err
		}
		v, perr := strconv.ParseUint(strings.TrimPrefix(f[1], "0x"), 16, 32)
		if perr != nil {
			return fmt.Errorf("bad access flags %q", f[1])
		}
		c.Access = int(v)
	case ir.Name:
		if err = arity(f, 1); err != nil {
			return err
		}
		c.Name = f[1]
	case ir.Signature:
		if err = arity(f, 1); err != nil {
			return err
		}
		c.Signature = ir.ParseNullable(f[1])
	case ir.Super:
		if err = arity(f, 1); err != nil {
			return err
		}
		c.SuperName = nullableName(f[1])
	case ir.Implements:
		c.Interfaces = append(c.Interfaces, f[1:]...)
	case ir.Source:
		if err = arity(f, 2); err != nil {
			return err
		}
		if c.SourceFile, err = nullableQuoted(f[1]); err != nil {
			return err
		}
		if c.SourceDebug, err = nullableQuoted(f[2]); err != nil {
			return err
		}
	case ir.InnerClass:
		if err = arity(f, 4); err != nil {
			return err
		}
		access, perr := strconv.ParseUint(f[1], 16, 16)
		if perr != nil {
			return fmt.Errorf("bad inner class access %q", f[1])
		}
		c.InnerClasses = append(c.InnerClasses, classfile.InnerClass{
			Access:    int(access),
			Name:      f[2],
			InnerName: nullableName(f[3]),
			OuterName: nullableName(f[4]),
		})
	case ir.OuterClass:
		if err = arity(f, 3); err != nil {
			return err
		}
		c.OuterClass = f[1]
		c.OuterMethod = nullableName(f[2])
		c.OuterMethodDesc = nullableName(f[3])
	case ir.NestHost:
		if err = arity(f, 1); err != nil {
			return err
		}
		c.NestHost = f[1]
	case ir.NestMembers:
		c.NestMembers = append(c.NestMembers, f[1:]...)
	default:
		return fmt.Errorf("unknown directive")
	}
	return nil
}
