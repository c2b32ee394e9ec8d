// Package disasm renders class trees as IR text and builds per-method
// control flow graphs over their instruction lists.
package disasm

import (
	"fmt"
	"strconv"
	"strings"

	"bcdiff/internal/classfile"
	"bcdiff/internal/ir"
)

// Render disassembles c into IR lines, one class per document. The output
// assembles back into an equivalent tree.
func Render(c *classfile.Class) ([]string, error) {
	r := &renderer{}
	r.header(c)
	for _, f := range c.Fields {
		if err := r.field(f); err != nil {
			return nil, fmt.Errorf("disasm: field %s: %w", f.Name, err)
		}
	}
	for _, m := range c.Methods {
		if err := r.method(m); err != nil {
			return nil, fmt.Errorf("disasm: method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	return r.out, nil
}

type renderer struct {
	out []string
}

func (r *renderer) emit(format string, args ...any) {
	r.out = append(r.out, fmt.Sprintf(format, args...))
}

func (r *renderer) member(format string, args ...any) {
	r.out = append(r.out, ir.Indent+fmt.Sprintf(format, args...))
}

func nullableName(s string) string {
	if s == "" {
		return ir.Null
	}
	return s
}

func nullableQuoted(s *string) string {
	if s == nil {
		return ir.Null
	}
	return ir.Quote(*s)
}

func (r *renderer) header(c *classfile.Class) {
	r.emit("%s %d // Java %d", ir.Version, c.Version, int(c.Version&0xFFFF)-44)
	r.emit("%s 0x%08X", ir.Access, c.Access)
	r.emit("%s %s", ir.Name, c.Name)
	r.emit("%s %s", ir.Signature, ir.Nullable(c.Signature))
	r.emit("%s %s", ir.Super, nullableName(c.SuperName))
	if len(c.Interfaces) > 0 {
		r.emit("%s %s", ir.Implements, strings.Join(c.Interfaces, " "))
	}
	if c.SourceFile != nil || c.SourceDebug != nil {
		r.emit("%s %s %s", ir.Source, nullableQuoted(c.SourceFile), nullableQuoted(c.SourceDebug))
	}
	if c.NestHost != "" {
		r.emit("%s %s", ir.NestHost, c.NestHost)
	}
	if c.OuterClass != "" {
		r.emit("%s %s %s %s", ir.OuterClass, c.OuterClass, nullableName(c.OuterMethod), nullableName(c.OuterMethodDesc))
	}
	if len(c.NestMembers) > 0 {
		r.emit("%s %s", ir.NestMembers, strings.Join(c.NestMembers, " "))
	}
	for _, ic := range c.InnerClasses {
		r.emit("%s %08X %s %s %s", ir.InnerClass, ic.Access, ic.Name, nullableName(ic.InnerName), nullableName(ic.OuterName))
	}
}

func (r *renderer) field(f *classfile.Field) error {
	r.emit("%s", ir.Field)
	words := append([]string{ir.Define}, ir.FieldAccessWords(f.Access)...)
	r.member("%s %s %s", strings.Join(words, " "), f.Desc, f.Name)
	if f.Signature != nil {
		r.member("%s %s", ir.MemberSig, *f.Signature)
	}
	if f.Value != nil {
		v, err := ir.FormatConst(f.Value)
		if err != nil {
			return err
		}
		r.member("%s %s", ir.Value, v)
	}
	r.emit("%s", ir.End)
	return nil
}

// methodText carries the naming state for one method body.
type methodText struct {
	static bool
	labels map[*classfile.Label]string
	meta   *classfile.Handle
}

func (t *methodText) label(l *classfile.Label) string {
	if name, ok := t.labels[l]; ok {
		return name
	}
	name := ir.LabelName(len(t.labels))
	t.labels[l] = name
	return name
}

// local names slot 0 of an instance method "this" and every other slot
// by its number.
func (t *methodText) local(slot int) string {
	if slot == 0 && !t.static {
		return "this"
	}
	return strconv.Itoa(slot)
}

// newMethodText names the labels of m in placement order.
func newMethodText(m *classfile.Method) *methodText {
	t := &methodText{static: m.IsStatic(), labels: map[*classfile.Label]string{}}
	for _, in := range m.Insns {
		if l, ok := in.(*classfile.Label); ok {
			t.label(l)
		}
	}
	t.meta = dominantBootstrap(m)
	return t
}

func (r *renderer) method(m *classfile.Method) error {
	t := newMethodText(m)

	params, ret, err := classfile.SplitMethodDesc(m.Desc)
	if err != nil {
		return err
	}
	slot := 0
	if !t.static {
		slot = 1
	}
	list := make([]string, len(params))
	for i, p := range params {
		list[i] = p + " " + strconv.Itoa(slot)
		slot += classfile.DescSize(p)
	}

	r.emit("%s", ir.Method)
	words := append([]string{ir.Define}, ir.MethodAccessWords(m.Access)...)
	r.member("%s %s(%s)%s", strings.Join(words, " "), m.Name, strings.Join(list, ", "), ret)
	if m.Signature != nil {
		r.member("%s %s", ir.MemberSig, *m.Signature)
	}
	for _, e := range m.Exceptions {
		r.member("%s %s", ir.Throws, e)
	}
	if t.meta != nil {
		r.member("%s %s %s", ir.Alias, ir.MetaAlias, ir.Quote(ir.FormatHandle(*t.meta)))
	}
	for _, lv := range m.LocalVars {
		r.member("%s %s %s %s %s %s", ir.MethodLVT, lv.Name, lv.Desc, t.local(lv.Index), t.label(lv.Start), t.label(lv.End))
	}
	for _, tc := range m.TryCatch {
		typ := tc.Type
		if typ == "" {
			typ = "*"
		}
		r.member("%s %s %s catch(%s) %s", ir.Try, t.label(tc.Start), t.label(tc.End), typ, t.label(tc.Handler))
	}
	for _, in := range m.Insns {
		line, err := t.insn(in)
		if err != nil {
			return err
		}
		r.member("%s", line)
	}
	r.emit("%s", ir.End)
	return nil
}

// dominantBootstrap returns the bootstrap handle used by the most call
// sites in m, the earliest one on ties.
func dominantBootstrap(m *classfile.Method) *classfile.Handle {
	var (
		order  []classfile.Handle
		counts = map[classfile.Handle]int{}
	)
	for _, in := range m.Insns {
		if in, ok := in.(*classfile.InvokeDynamicInsn); ok {
			if counts[in.Bsm] == 0 {
				order = append(order, in.Bsm)
			}
			counts[in.Bsm]++
		}
	}
	var best *classfile.Handle
	for i := range order {
		if best == nil || counts[order[i]] > counts[*best] {
			best = &order[i]
		}
	}
	return best
}

func (t *methodText) labelList(ls []*classfile.Label) string {
	names := make([]string, len(ls))
	for i, l := range ls {
		names[i] = t.label(l)
	}
	return strings.Join(names, ", ")
}

func (t *methodText) insn(in classfile.Insn) (string, error) {
	name := classfile.OpName(in.Op())
	switch in := in.(type) {
	case *classfile.Label:
		return t.label(in) + ":", nil
	case *classfile.LineNumber:
		return fmt.Sprintf("%s %s %d", ir.Line, t.label(in.Start), in.Line), nil
	case *classfile.SimpleInsn:
		return name, nil
	case *classfile.IntInsn:
		if in.Opcode == classfile.NEWARRAY {
			desc, ok := classfile.NewArrayTypes[in.Operand]
			if !ok {
				return "", fmt.Errorf("bad NEWARRAY type %d", in.Operand)
			}
			return name + " " + desc, nil
		}
		return fmt.Sprintf("%s %d", name, in.Operand), nil
	case *classfile.VarInsn:
		return name + " " + t.local(in.Var), nil
	case *classfile.IincInsn:
		return fmt.Sprintf("%s %s %d", name, t.local(in.Var), in.Incr), nil
	case *classfile.TypeInsn:
		return name + " " + in.Desc, nil
	case *classfile.FieldInsn:
		return fmt.Sprintf("%s %s.%s %s", name, in.Owner, in.Name, in.Desc), nil
	case *classfile.MethodInsn:
		s := fmt.Sprintf("%s %s.%s%s", name, in.Owner, in.Name, in.Desc)
		if in.Itf && in.Opcode != classfile.INVOKEINTERFACE {
			s += " " + ir.Itf
		}
		return s, nil
	case *classfile.InvokeDynamicInsn:
		bsm := ir.FormatHandle(in.Bsm)
		if t.meta != nil && in.Bsm == *t.meta {
			bsm = ir.MetaAliasRef
		}
		args := make([]string, len(in.BsmArgs))
		for i, a := range in.BsmArgs {
			s, err := ir.FormatConst(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return fmt.Sprintf("%s %s %s %s args[%s]", name, in.Name, in.Desc, bsm, strings.Join(args, ", ")), nil
	case *classfile.JumpInsn:
		return name + " " + t.label(in.Target), nil
	case *classfile.LdcInsn:
		s, err := ir.FormatConst(in.Value)
		if err != nil {
			return "", err
		}
		return name + " " + s, nil
	case *classfile.TableSwitchInsn:
		return fmt.Sprintf("%s range[%d:%d] offsets[%s] default[%s]",
			name, in.Min, in.Max, t.labelList(in.Labels), t.label(in.Default)), nil
	case *classfile.LookupSwitchInsn:
		pairs := make([]string, len(in.Keys))
		for i, k := range in.Keys {
			pairs[i] = fmt.Sprintf("%d=%s", k, t.label(in.Labels[i]))
		}
		return fmt.Sprintf("%s mapping[%s] default[%s]", name, strings.Join(pairs, ", "), t.label(in.Default)), nil
	case *classfile.MultiANewArrayInsn:
		return fmt.Sprintf("%s %s %d", name, in.Desc, in.Dims), nil
	}
	return "", fmt.Errorf("unknown instruction %T", in)
}
