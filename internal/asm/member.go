package asm

import (
	"fmt"
	"strings"

	"bcdiff/internal/classfile"
	"bcdiff/internal/ir"
)

// keyword splits a member line into its first word and the rest.
func keyword(text string) (string, string) {
	kw, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	return kw, strings.TrimSpace(rest)
}

func parseField(block []line) (*classfile.Field, error) {
	head := block[0]
	f := ir.Fields(strings.TrimSpace(head.text))
	if f[0] != ir.Define || len(f) < 3 {
		return nil, head.errorf("expected %s <flags> <desc> <name>", ir.Define)
	}
	fd := &classfile.Field{Desc: f[len(f)-2], Name: f[len(f)-1]}
	if !classfile.ValidFieldDesc(fd.Desc) {
		return nil, head.errorf("bad field descriptor %q", fd.Desc)
	}
	for _, w := range f[1 : len(f)-2] {
		bit, err := ir.ParseFieldFlag(w)
		if err != nil {
			return nil, head.wrap(err)
		}
		fd.Access |= bit
	}

	for _, l := range block[1:] {
		kw, rest := keyword(l.text)
		switch kw {
		case ir.Value:
			v, err := ir.ParseConst(rest)
			if err != nil {
				return nil, l.wrap(err)
			}
			if !constantFits(fd.Desc, v) {
				return nil, l.errorf("%s constant does not fit field type %s", constKind(v), fd.Desc)
			}
			fd.Value = v
		case ir.MemberSig:
			fd.Signature = ir.ParseNullable(rest)
		default:
			return nil, l.errorf("unknown field attribute")
		}
	}
	return fd, nil
}

// constantFits reports whether v can be the ConstantValue of a field with
// descriptor desc.
func constantFits(desc string, v any) bool {
	switch v.(type) {
	case int32:
		return len(desc) == 1 && strings.Contains("ZBCSI", desc)
	case int64:
		return desc == "J"
	case float32:
		return desc == "F"
	case float64:
		return desc == "D"
	case string:
		return desc == "Ljava/lang/String;"
	}
	return false
}

func constKind(v any) string {
	switch v.(type) {
	case int32:
		return "int"
	case int64:
		return "long"
	case float32:
		return "float"
	case float64:
		return "double"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", v)
}

// methodHeader parses DEFINE <flags> name(desc1 name1, desc2 name2)ret and
// seeds the local table with the receiver and parameters.
func methodHeader(head line) (*classfile.Method, *locals, error) {
	kw, rest := keyword(head.text)
	if kw != ir.Define {
		return nil, nil, head.errorf("expected %s", ir.Define)
	}
	open := strings.IndexByte(rest, '(')
	closing := strings.LastIndexByte(rest, ')')
	if open < 0 || closing < open {
		return nil, nil, head.errorf("method header needs a parameter list")
	}
	words := strings.Fields(rest[:open])
	if len(words) == 0 {
		return nil, nil, head.errorf("method header needs a name")
	}
	m := &classfile.Method{Name: words[len(words)-1]}
	for _, w := range words[:len(words)-1] {
		bit, err := ir.ParseMethodFlag(w)
		if err != nil {
			return nil, nil, head.wrap(err)
		}
		m.Access |= bit
	}

	type param struct{ desc, name string }
	var params []param
	var desc strings.Builder
	desc.WriteByte('(')
	for _, p := range ir.List(rest[open+1 : closing]) {
		pf := strings.Fields(p)
		if len(pf) != 2 {
			return nil, nil, head.errorf("parameter %q needs a descriptor and a name", p)
		}
		if !classfile.ValidFieldDesc(pf[0]) || pf[0] == "V" {
			return nil, nil, head.errorf("bad parameter descriptor %q", pf[0])
		}
		params = append(params, param{pf[0], pf[1]})
		desc.WriteString(pf[0])
	}
	desc.WriteByte(')')
	desc.WriteString(strings.TrimSpace(rest[closing+1:]))
	m.Desc = desc.String()
	if _, _, err := classfile.SplitMethodDesc(m.Desc); err != nil {
		return nil, nil, head.errorf("bad method descriptor %q", m.Desc)
	}

	vars := newLocals(m.IsStatic())
	for _, p := range params {
		if _, err := vars.param(p.name, classfile.IsWide(p.desc)); err != nil {
			return nil, nil, head.wrap(err)
		}
	}
	return m, vars, nil
}

// body is the per-method assembly state.
type body struct {
	m      *classfile.Method
	labels *labels
	locals *locals
	meta   *classfile.Handle
	line   int
}

func parseMethod(block []line) (*classfile.Method, error) {
	m, vars, err := methodHeader(block[0])
	if err != nil {
		return nil, err
	}
	b := &body{m: m, labels: newLabels(), locals: vars}
	for _, l := range block[1:] {
		b.line = l.n
		if err := b.member(l); err != nil {
			return nil, l.wrap(err)
		}
	}
	if !m.HasCode() && len(m.Insns) > 0 {
		return nil, block[0].errorf("abstract or native method has instructions")
	}
	for _, name := range b.labels.dangling() {
		n := b.labels.firstAt[name]
		text := ""
		for _, l := range block {
			if l.n == n {
				text = l.text
			}
		}
		return nil, &SyntaxError{Line: n, Text: text, Msg: fmt.Sprintf("label %s is never declared", name)}
	}
	return m, nil
}

func (b *body) member(l line) error {
	text := strings.TrimSpace(l.text)
	kw, rest := keyword(text)
	switch kw {
	case ir.MemberSig:
		b.m.Signature = ir.ParseNullable(rest)
		return nil
	case ir.Throws:
		if rest == "" {
			return fmt.Errorf("%s needs a class name", ir.Throws)
		}
		b.m.Exceptions = append(b.m.Exceptions, strings.Fields(rest)...)
		return nil
	case ir.Alias:
		return b.alias(rest)
	case ir.MethodLVT:
		return b.localVar(ir.Fields(rest))
	case ir.Try:
		return b.tryCatch(ir.Fields(rest))
	case ir.Line:
		return b.lineNumber(ir.Fields(rest))
	}

	f := ir.Fields(text)
	if mn, ok := mnemonics[f[0]]; ok {
		insn, err := mn.decode(b, mn.op, f[1:])
		if err != nil {
			return fmt.Errorf("%s: %w", f[0], err)
		}
		b.m.Insns = append(b.m.Insns, insn)
		return nil
	}
	if len(f) == 1 && strings.HasSuffix(f[0], ":") {
		lbl, err := b.labels.place(strings.TrimSuffix(f[0], ":"), b.line)
		if err != nil {
			return err
		}
		b.m.Insns = append(b.m.Insns, lbl)
		return nil
	}
	return fmt.Errorf("unknown instruction")
}

func (b *body) alias(rest string) error {
	f := ir.Fields(rest)
	if len(f) != 2 || f[0] != ir.MetaAlias {
		return fmt.Errorf("expected %s %s \"handle[...]\"", ir.Alias, ir.MetaAlias)
	}
	s, err := ir.Unquote(f[1])
	if err != nil {
		return err
	}
	h, err := ir.ParseHandle(s)
	if err != nil {
		return err
	}
	b.meta = &h
	return nil
}

// handle parses a bootstrap handle token, expanding the method's alias.
func (b *body) handle(tok string) (classfile.Handle, error) {
	if tok == ir.MetaAliasRef {
		if b.meta == nil {
			return classfile.Handle{}, fmt.Errorf("%s used before %s", ir.MetaAliasRef, ir.Alias)
		}
		return *b.meta, nil
	}
	return ir.ParseHandle(tok)
}

// localVar parses name desc index start end.
func (b *body) localVar(f []string) error {
	if len(f) != 5 {
		return fmt.Errorf("%s needs name desc index start end", ir.MethodLVT)
	}
	if !classfile.ValidFieldDesc(f[1]) {
		return fmt.Errorf("bad local variable descriptor %q", f[1])
	}
	idx, err := b.locals.resolve(f[2], classfile.IsWide(f[1]))
	if err != nil {
		return err
	}
	start, err := b.labels.ref(f[3], b.line)
	if err != nil {
		return err
	}
	end, err := b.labels.ref(f[4], b.line)
	if err != nil {
		return err
	}
	// Slot numbers and this already mean a slot; only symbolic names bind.
	if _, isSlot := slotNumber(f[0]); !isSlot && f[0] != "this" {
		if _, bound := b.locals.slots[f[0]]; !bound {
			b.locals.slots[f[0]] = idx
		}
	}
	b.m.LocalVars = append(b.m.LocalVars, classfile.LocalVar{
		Name: f[0], Desc: f[1], Index: idx, Start: start, End: end,
	})
	return nil
}

// tryCatch parses A B catch(type) C. catch(*) is a catch-all handler.
func (b *body) tryCatch(f []string) error {
	if len(f) != 4 || !strings.HasPrefix(f[2], "catch(") || !strings.HasSuffix(f[2], ")") {
		return fmt.Errorf("expected %s start end catch(type) handler", ir.Try)
	}
	typ := f[2][len("catch(") : len(f[2])-1]
	if typ == "*" {
		typ = ""
	} else if typ == "" {
		return fmt.Errorf("empty catch type")
	}
	var ls [3]*classfile.Label
	for i, name := range []string{f[0], f[1], f[3]} {
		l, err := b.labels.ref(name, b.line)
		if err != nil {
			return err
		}
		ls[i] = l
	}
	b.m.TryCatch = append(b.m.TryCatch, classfile.TryCatch{
		Start: ls[0], End: ls[1], Handler: ls[2], Type: typ,
	})
	return nil
}

// lineNumber parses LINE label number.
func (b *body) lineNumber(f []string) error {
	if len(f) != 2 {
		return fmt.Errorf("expected %s label number", ir.Line)
	}
	start, err := b.labels.ref(f[0], b.line)
	if err != nil {
		return err
	}
	n, err := parseInt(f[1], 0, 0xFFFF)
	if err != nil {
		return err
	}
	b.m.Insns = append(b.m.Insns, &classfile.LineNumber{Line: n, Start: start})
	return nil
}
