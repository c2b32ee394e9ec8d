package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// frameVersion is the first class file major version that requires stack
// map frames.
const frameVersion = 50

// Write serializes c. merge joins two reference types at control flow merge
// points; a nil merge widens every join to java/lang/Object.
func Write(c *Class, merge MergeFunc) ([]byte, error) {
	cp := newConstPool()
	w := &classWriter{c: c, cp: cp, merge: merge}

	thisIdx := cp.class(c.Name)
	superIdx := 0
	if c.SuperName != "" {
		superIdx = cp.class(c.SuperName)
	}
	var body []byte
	body = put2(body, c.Access)
	body = put2(body, thisIdx)
	body = put2(body, superIdx)
	body = put2(body, len(c.Interfaces))
	for _, itf := range c.Interfaces {
		body = put2(body, cp.class(itf))
	}

	body = put2(body, len(c.Fields))
	for _, f := range c.Fields {
		b, err := w.field(f)
		if err != nil {
			return nil, fmt.Errorf("classfile: field %s: %w", f.Name, err)
		}
		body = append(body, b...)
	}
	body = put2(body, len(c.Methods))
	for _, m := range c.Methods {
		b, err := w.method(m)
		if err != nil {
			return nil, fmt.Errorf("classfile: %s.%s%s: %w", c.Name, m.Name, m.Desc, err)
		}
		body = append(body, b...)
	}

	attrs := w.classAttrs()
	body = append(body, attrs...)

	if cp.count > math.MaxUint16 {
		return nil, fmt.Errorf("classfile: constant pool of %s has %d entries", c.Name, cp.count)
	}
	out := make([]byte, 0, 10+len(cp.buf)+len(body))
	out = put4(out, Magic)
	out = put2(out, int(c.Version>>16))
	out = put2(out, int(c.Version&0xffff))
	out = put2(out, cp.count)
	out = append(out, cp.buf...)
	return append(out, body...), nil
}

type classWriter struct {
	c     *Class
	cp    *constPool
	merge MergeFunc
}

func (w *classWriter) attr(b []byte, name string, data []byte) []byte {
	b = put2(b, w.cp.utf8(name))
	b = put4(b, uint32(len(data)))
	return append(b, data...)
}

func (w *classWriter) classAttrs() []byte {
	c, cp := w.c, w.cp
	var attrs []byte
	n := 0
	add := func(name string, data []byte) {
		attrs = w.attr(attrs, name, data)
		n++
	}
	if c.Signature != nil {
		add("Signature", put2(nil, cp.utf8(*c.Signature)))
	}
	if c.SourceFile != nil {
		add("SourceFile", put2(nil, cp.utf8(*c.SourceFile)))
	}
	if c.SourceDebug != nil {
		add("SourceDebugExtension", encodeMUTF8(*c.SourceDebug))
	}
	if c.OuterClass != "" {
		b := put2(nil, cp.class(c.OuterClass))
		nt := 0
		if c.OuterMethod != "" {
			nt = cp.nameAndType(c.OuterMethod, c.OuterMethodDesc)
		}
		add("EnclosingMethod", put2(b, nt))
	}
	if c.NestHost != "" {
		add("NestHost", put2(nil, cp.class(c.NestHost)))
	}
	if len(c.NestMembers) > 0 {
		b := put2(nil, len(c.NestMembers))
		for _, m := range c.NestMembers {
			b = put2(b, cp.class(m))
		}
		add("NestMembers", b)
	}
	if len(c.InnerClasses) > 0 {
		b := put2(nil, len(c.InnerClasses))
		for _, ic := range c.InnerClasses {
			b = put2(b, cp.class(ic.Name))
			outer, inner := 0, 0
			if ic.OuterName != "" {
				outer = cp.class(ic.OuterName)
			}
			if ic.InnerName != "" {
				inner = cp.utf8(ic.InnerName)
			}
			b = put2(put2(b, outer), inner)
			b = put2(b, ic.Access)
		}
		add("InnerClasses", b)
	}
	// Registered last: method bodies and the attributes above are done
	// adding bootstrap methods.
	if cp.bsmCount > 0 {
		add("BootstrapMethods", append(put2(nil, cp.bsmCount), cp.bsmBuf...))
	}
	return append(put2(nil, n), attrs...)
}

func (w *classWriter) field(f *Field) ([]byte, error) {
	cp := w.cp
	b := put2(nil, f.Access)
	b = put2(b, cp.utf8(f.Name))
	b = put2(b, cp.utf8(f.Desc))
	var attrs []byte
	n := 0
	if f.Value != nil {
		idx, _, err := cp.constant(f.Value)
		if err != nil {
			return nil, err
		}
		attrs = w.attr(attrs, "ConstantValue", put2(nil, idx))
		n++
	}
	if f.Signature != nil {
		attrs = w.attr(attrs, "Signature", put2(nil, cp.utf8(*f.Signature)))
		n++
	}
	b = put2(b, n)
	return append(b, attrs...), nil
}

func (w *classWriter) method(m *Method) ([]byte, error) {
	cp := w.cp
	b := put2(nil, m.Access)
	b = put2(b, cp.utf8(m.Name))
	b = put2(b, cp.utf8(m.Desc))
	var attrs []byte
	n := 0
	if m.HasCode() && len(m.Insns) > 0 {
		code, err := w.code(m)
		if err != nil {
			return nil, err
		}
		attrs = w.attr(attrs, "Code", code)
		n++
	}
	if len(m.Exceptions) > 0 {
		eb := put2(nil, len(m.Exceptions))
		for _, e := range m.Exceptions {
			eb = put2(eb, cp.class(e))
		}
		attrs = w.attr(attrs, "Exceptions", eb)
		n++
	}
	if m.Signature != nil {
		attrs = w.attr(attrs, "Signature", put2(nil, cp.utf8(*m.Signature)))
		n++
	}
	b = put2(b, n)
	return append(b, attrs...), nil
}

type fixup struct {
	insnPC int
	at     int
	label  *Label
	wide   bool
}

// layout encodes the instruction list and resolves label offsets.
func (w *classWriter) layout(m *Method) ([]byte, map[Insn]int, error) {
	cp := w.cp
	var code []byte
	pcs := map[Insn]int{}
	placed := map[*Label]bool{}
	var fixups []fixup

	branch := func(pc int, l *Label, wide bool) {
		fixups = append(fixups, fixup{insnPC: pc, at: len(code), label: l, wide: wide})
		if wide {
			code = put4(code, 0)
		} else {
			code = put2(code, 0)
		}
	}
	local := func(op, short, v int) {
		switch {
		case v < 4 && short >= 0:
			code = append(code, byte(short+v))
		case v < 256:
			code = append(code, byte(op), byte(v))
		default:
			code = append(code, WIDE, byte(op))
			code = put2(code, v)
		}
	}

	for _, insn := range m.Insns {
		pc := len(code)
		switch in := insn.(type) {
		case *Label:
			if placed[in] {
				return nil, nil, fmt.Errorf("classfile: label placed twice")
			}
			placed[in] = true
			in.offset = pc
			continue
		case *LineNumber:
			continue
		}
		pcs[insn] = pc

		switch in := insn.(type) {
		case *SimpleInsn:
			code = append(code, byte(in.Opcode))
		case *IntInsn:
			switch in.Opcode {
			case SIPUSH:
				code = put2(append(code, SIPUSH), in.Operand)
			default:
				code = append(code, byte(in.Opcode), byte(in.Operand))
			}
		case *VarInsn:
			switch {
			case in.Opcode >= ILOAD && in.Opcode <= ALOAD:
				local(in.Opcode, ILOAD_0+(in.Opcode-ILOAD)*4, in.Var)
			case in.Opcode >= ISTORE && in.Opcode <= ASTORE:
				local(in.Opcode, ISTORE_0+(in.Opcode-ISTORE)*4, in.Var)
			default:
				local(in.Opcode, -1, in.Var)
			}
		case *IincInsn:
			if in.Var < 256 && in.Incr >= math.MinInt8 && in.Incr <= math.MaxInt8 {
				code = append(code, IINC, byte(in.Var), byte(int8(in.Incr)))
			} else {
				code = append(code, WIDE, IINC)
				code = put2(put2(code, in.Var), in.Incr)
			}
		case *TypeInsn:
			code = put2(append(code, byte(in.Opcode)), cp.class(in.Desc))
		case *FieldInsn:
			code = put2(append(code, byte(in.Opcode)), cp.field(in.Owner, in.Name, in.Desc))
		case *MethodInsn:
			idx := cp.method(in.Owner, in.Name, in.Desc, in.Itf || in.Opcode == INVOKEINTERFACE)
			code = put2(append(code, byte(in.Opcode)), idx)
			if in.Opcode == INVOKEINTERFACE {
				n, err := ArgsSize(in.Desc, false)
				if err != nil {
					return nil, nil, err
				}
				code = append(code, byte(n), 0)
			}
		case *InvokeDynamicInsn:
			idx, err := cp.invokeDynamic(in)
			if err != nil {
				return nil, nil, err
			}
			code = append(put2(append(code, INVOKEDYNAMIC), idx), 0, 0)
		case *JumpInsn:
			code = append(code, byte(in.Opcode))
			branch(pc, in.Target, false)
		case *LdcInsn:
			idx, wide, err := cp.constant(in.Value)
			if err != nil {
				return nil, nil, err
			}
			switch {
			case wide:
				code = put2(append(code, LDC2_W), idx)
			case idx < 256:
				code = append(code, LDC, byte(idx))
			default:
				code = put2(append(code, LDC_W), idx)
			}
		case *TableSwitchInsn:
			if int(in.Max)-int(in.Min)+1 != len(in.Labels) {
				return nil, nil, fmt.Errorf("classfile: tableswitch range %d:%d has %d labels", in.Min, in.Max, len(in.Labels))
			}
			code = append(code, TABLESWITCH)
			for len(code)%4 != 0 {
				code = append(code, 0)
			}
			branch(pc, in.Default, true)
			code = put4(put4(code, uint32(in.Min)), uint32(in.Max))
			for _, l := range in.Labels {
				branch(pc, l, true)
			}
		case *LookupSwitchInsn:
			if len(in.Keys) != len(in.Labels) {
				return nil, nil, fmt.Errorf("classfile: lookupswitch has %d keys and %d labels", len(in.Keys), len(in.Labels))
			}
			code = append(code, LOOKUPSWITCH)
			for len(code)%4 != 0 {
				code = append(code, 0)
			}
			branch(pc, in.Default, true)
			code = put4(code, uint32(len(in.Keys)))
			order := make([]int, len(in.Keys))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(i, j int) bool { return in.Keys[order[i]] < in.Keys[order[j]] })
			for _, i := range order {
				code = put4(code, uint32(in.Keys[i]))
				branch(pc, in.Labels[i], true)
			}
		case *MultiANewArrayInsn:
			code = append(put2(append(code, MULTIANEWARRAY), cp.class(in.Desc)), byte(in.Dims))
		default:
			return nil, nil, fmt.Errorf("classfile: unknown instruction %T", insn)
		}
	}

	for _, f := range fixups {
		if !placed[f.label] {
			return nil, nil, fmt.Errorf("classfile: branch at %d targets a label that is not in the method", f.insnPC)
		}
		delta := f.label.offset - f.insnPC
		if f.wide {
			binary.BigEndian.PutUint32(code[f.at:], uint32(int32(delta)))
			continue
		}
		if delta < math.MinInt16 || delta > math.MaxInt16 {
			return nil, nil, fmt.Errorf("%w: %d at offset %d", ErrBranchOverflow, delta, f.insnPC)
		}
		binary.BigEndian.PutUint16(code[f.at:], uint16(int16(delta)))
	}
	for _, tc := range m.TryCatch {
		for _, l := range []*Label{tc.Start, tc.End, tc.Handler} {
			if !placed[l] {
				return nil, nil, fmt.Errorf("classfile: exception range refers to a label that is not in the method")
			}
		}
	}
	if len(code) > math.MaxUint16 {
		return nil, nil, fmt.Errorf("classfile: method code is %d bytes", len(code))
	}
	return code, pcs, nil
}

type excEntry struct {
	start, end, handler int
	typ                 string
}

func (w *classWriter) code(m *Method) ([]byte, error) {
	code, pcs, err := w.layout(m)
	if err != nil {
		return nil, err
	}
	frames := w.c.Version&0xffff >= frameVersion
	a := newAnalysis(w.c.Name, m, pcs, len(code), w.merge, frames)
	if err := a.run(); err != nil {
		return nil, err
	}

	var excs []excEntry
	for _, tc := range m.TryCatch {
		excs = append(excs, excEntry{tc.Start.offset, tc.End.offset, tc.Handler.offset, tc.Type})
	}

	var smt []byte
	nframes := 0
	if frames {
		dead := a.eraseDead(code)
		excs = trimRanges(excs, dead)
		if len(dead) > 0 {
			a.maxStack = max(a.maxStack, 1)
		}
		smt, nframes = w.stackMapTable(a, dead)
	}
	m.MaxStack, m.MaxLocals = a.maxStack, a.maxLocals

	cp := w.cp
	b := put2(nil, a.maxStack)
	b = put2(b, a.maxLocals)
	b = put4(b, uint32(len(code)))
	b = append(b, code...)
	b = put2(b, len(excs))
	for _, e := range excs {
		b = put2(put2(put2(b, e.start), e.end), e.handler)
		t := 0
		if e.typ != "" {
			t = cp.class(e.typ)
		}
		b = put2(b, t)
	}

	var attrs []byte
	n := 0
	if nframes > 0 {
		attrs = w.attr(attrs, "StackMapTable", append(put2(nil, nframes), smt...))
		n++
	}
	if lnt, count := lineNumbers(m); count > 0 {
		attrs = w.attr(attrs, "LineNumberTable", append(put2(nil, count), lnt...))
		n++
	}
	if len(m.LocalVars) > 0 {
		lvt := put2(nil, len(m.LocalVars))
		for _, lv := range m.LocalVars {
			lvt = put2(lvt, lv.Start.offset)
			lvt = put2(lvt, lv.End.offset-lv.Start.offset)
			lvt = put2(lvt, cp.utf8(lv.Name))
			lvt = put2(lvt, cp.utf8(lv.Desc))
			lvt = put2(lvt, lv.Index)
		}
		attrs = w.attr(attrs, "LocalVariableTable", lvt)
		n++
	}
	b = put2(b, n)
	return append(b, attrs...), nil
}

func lineNumbers(m *Method) ([]byte, int) {
	var b []byte
	n := 0
	for _, in := range m.Insns {
		if ln, ok := in.(*LineNumber); ok {
			b = put2(put2(b, ln.Start.offset), ln.Line)
			n++
		}
	}
	return b, n
}

// span is a half-open byte range of erased code.
type span struct{ start, end int }

// eraseDead replaces every run of unreachable instructions with
// NOP...ATHROW and returns the erased ranges.
func (a *analysis) eraseDead(code []byte) []span {
	var dead []span
	n := len(a.insns)
	for k := 0; k < n; {
		if a.in[k] != nil {
			k++
			continue
		}
		j := k
		for j < n && a.in[j] == nil {
			j++
		}
		s := span{a.pcs[k], a.pcs[j]}
		for i := s.start; i < s.end-1; i++ {
			code[i] = NOP
		}
		code[s.end-1] = ATHROW
		dead = append(dead, s)
		k = j
	}
	return dead
}

// trimRanges removes erased code from exception ranges, splitting or
// dropping entries as needed.
func trimRanges(excs []excEntry, dead []span) []excEntry {
	if len(dead) == 0 {
		return excs
	}
	var out []excEntry
	for _, e := range excs {
		parts := []excEntry{e}
		for _, d := range dead {
			var next []excEntry
			for _, p := range parts {
				if d.end <= p.start || d.start >= p.end {
					next = append(next, p)
					continue
				}
				if p.start < d.start {
					q := p
					q.end = d.start
					next = append(next, q)
				}
				if d.end < p.end {
					q := p
					q.start = d.end
					next = append(next, q)
				}
			}
			parts = next
		}
		out = append(out, parts...)
	}
	return out
}
