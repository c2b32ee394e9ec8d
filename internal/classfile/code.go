package classfile

import (
	"encoding/binary"
	"fmt"
)

// labelSet hands out one label per bytecode offset.
type labelSet map[int]*Label

func (ls labelSet) at(off int) *Label {
	if l, ok := ls[off]; ok {
		return l
	}
	l := &Label{offset: off}
	ls[off] = l
	return l
}

func (p *parser) code(m *Method, r *reader) error {
	m.MaxStack = r.u2()
	m.MaxLocals = r.u2()
	codeLen := int(r.u4())
	code := r.bytes(codeLen)
	if r.err != nil {
		return r.err
	}

	labels := labelSet{}
	if err := scanTargets(code, labels); err != nil {
		return err
	}

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		start, end, handler, typ := r.u2(), r.u2(), r.u2(), r.u2()
		tc := TryCatch{Start: labels.at(start), End: labels.at(end), Handler: labels.at(handler)}
		if typ != 0 {
			name, err := p.className(typ)
			if err != nil {
				return fmt.Errorf("exception table: %w", err)
			}
			tc.Type = name
		}
		m.TryCatch = append(m.TryCatch, tc)
	}

	attrs, err := p.readAttrs(r)
	if err != nil {
		return err
	}
	lines := map[int][]int{}
	for _, a := range attrs {
		if p.opts.SkipDebug {
			break
		}
		ar := &reader{data: a.data}
		switch a.name {
		case "LineNumberTable":
			for n := ar.u2(); n > 0 && ar.err == nil; n-- {
				pc, line := ar.u2(), ar.u2()
				labels.at(pc)
				lines[pc] = append(lines[pc], line)
			}
		case "LocalVariableTable":
			for n := ar.u2(); n > 0 && ar.err == nil; n-- {
				start, length := ar.u2(), ar.u2()
				name, err := p.utf8(ar.u2())
				if err != nil {
					return fmt.Errorf("LocalVariableTable: %w", err)
				}
				desc, err := p.utf8(ar.u2())
				if err != nil {
					return fmt.Errorf("LocalVariableTable: %w", err)
				}
				m.LocalVars = append(m.LocalVars, LocalVar{
					Name:  name,
					Desc:  desc,
					Start: labels.at(start),
					End:   labels.at(start + length),
					Index: ar.u2(),
				})
			}
		}
		if ar.err != nil {
			return fmt.Errorf("%s: %w", a.name, ar.err)
		}
	}

	for off := range labels {
		if off < 0 || off > codeLen {
			return fmt.Errorf("classfile: label offset %d outside code of length %d", off, codeLen)
		}
	}

	insns, err := p.decode(code, labels, lines)
	if err != nil {
		return err
	}
	m.Insns = insns
	return nil
}

// insnLen returns the encoded length of the instruction at pc.
func insnLen(code []byte, pc int) (int, error) {
	op := int(code[pc])
	switch op {
	case TABLESWITCH:
		base := pc + 1 + (3 - pc&3)
		if base+12 > len(code) {
			return 0, ErrTruncated
		}
		lo := int32(binary.BigEndian.Uint32(code[base+4:]))
		hi := int32(binary.BigEndian.Uint32(code[base+8:]))
		if hi < lo {
			return 0, fmt.Errorf("classfile: tableswitch at %d has high < low", pc)
		}
		return base - pc + 12 + 4*int(int64(hi)-int64(lo)+1), nil
	case LOOKUPSWITCH:
		base := pc + 1 + (3 - pc&3)
		if base+8 > len(code) {
			return 0, ErrTruncated
		}
		n := int(int32(binary.BigEndian.Uint32(code[base+4:])))
		if n < 0 {
			return 0, fmt.Errorf("classfile: lookupswitch at %d has negative pair count", pc)
		}
		return base - pc + 8 + 8*n, nil
	case WIDE:
		if pc+1 >= len(code) {
			return 0, ErrTruncated
		}
		if int(code[pc+1]) == IINC {
			return 6, nil
		}
		return 4, nil
	}
	n := operandLen[op]
	if n < 0 {
		return 0, fmt.Errorf("classfile: invalid opcode 0x%02x at %d", op, pc)
	}
	return 1 + n, nil
}

// operandLen is the fixed operand size per opcode, -1 for undefined opcodes.
var operandLen = func() [256]int {
	var t [256]int
	for i := range t {
		t[i] = -1
	}
	for op := NOP; op <= JSR_W; op++ {
		t[op] = 0
	}
	for _, op := range []int{BIPUSH, LDC, ILOAD, LLOAD, FLOAD, DLOAD, ALOAD,
		ISTORE, LSTORE, FSTORE, DSTORE, ASTORE, RET, NEWARRAY} {
		t[op] = 1
	}
	for _, op := range []int{SIPUSH, LDC_W, LDC2_W, IINC, GETSTATIC, PUTSTATIC,
		GETFIELD, PUTFIELD, INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, NEW,
		ANEWARRAY, CHECKCAST, INSTANCEOF} {
		t[op] = 2
	}
	for op := IFEQ; op <= JSR; op++ {
		t[op] = 2
	}
	t[IFNULL], t[IFNONNULL] = 2, 2
	t[MULTIANEWARRAY] = 3
	t[INVOKEINTERFACE], t[INVOKEDYNAMIC] = 4, 4
	t[GOTO_W], t[JSR_W] = 4, 4
	return t
}()

func s2(b []byte) int { return int(int16(binary.BigEndian.Uint16(b))) }
func u2(b []byte) int { return int(binary.BigEndian.Uint16(b)) }
func s4(b []byte) int { return int(int32(binary.BigEndian.Uint32(b))) }

// scanTargets registers a label at every branch and switch target.
func scanTargets(code []byte, labels labelSet) error {
	for pc := 0; pc < len(code); {
		n, err := insnLen(code, pc)
		if err != nil {
			return err
		}
		if pc+n > len(code) {
			return fmt.Errorf("%w: instruction at %d overruns code", ErrTruncated, pc)
		}
		op := int(code[pc])
		switch {
		case op >= IFEQ && op <= JSR, op == IFNULL, op == IFNONNULL:
			labels.at(pc + s2(code[pc+1:]))
		case op == GOTO_W, op == JSR_W:
			labels.at(pc + s4(code[pc+1:]))
		case op == TABLESWITCH:
			base := pc + 1 + (3 - pc&3)
			labels.at(pc + s4(code[base:]))
			for i := base + 12; i < pc+n; i += 4 {
				labels.at(pc + s4(code[i:]))
			}
		case op == LOOKUPSWITCH:
			base := pc + 1 + (3 - pc&3)
			labels.at(pc + s4(code[base:]))
			for i := base + 8; i < pc+n; i += 8 {
				labels.at(pc + s4(code[i+4:]))
			}
		}
		pc += n
	}
	return nil
}

func (p *parser) decode(code []byte, labels labelSet, lines map[int][]int) ([]Insn, error) {
	var out []Insn
	mark := func(pc int) {
		if l, ok := labels[pc]; ok {
			out = append(out, l)
			for _, line := range lines[pc] {
				out = append(out, &LineNumber{Line: line, Start: l})
			}
		}
	}

	for pc := 0; pc < len(code); {
		mark(pc)
		n, _ := insnLen(code, pc)
		op := int(code[pc])
		ops := code[pc+1 : pc+n]
		var insn Insn
		switch {
		case op >= ILOAD_0 && op <= ALOAD_3:
			insn = &VarInsn{Opcode: ILOAD + (op-ILOAD_0)/4, Var: (op - ILOAD_0) % 4}
		case op >= ISTORE_0 && op <= ASTORE_3:
			insn = &VarInsn{Opcode: ISTORE + (op-ISTORE_0)/4, Var: (op - ISTORE_0) % 4}
		case op >= ILOAD && op <= ALOAD, op >= ISTORE && op <= ASTORE, op == RET:
			insn = &VarInsn{Opcode: op, Var: int(ops[0])}
		case op == BIPUSH:
			insn = &IntInsn{Opcode: op, Operand: int(int8(ops[0]))}
		case op == SIPUSH:
			insn = &IntInsn{Opcode: op, Operand: s2(ops)}
		case op == NEWARRAY:
			insn = &IntInsn{Opcode: op, Operand: int(ops[0])}
		case op == LDC, op == LDC_W, op == LDC2_W:
			idx := int(ops[0])
			if op != LDC {
				idx = u2(ops)
			}
			v, err := p.constant(idx)
			if err != nil {
				return nil, fmt.Errorf("ldc at %d: %w", pc, err)
			}
			insn = &LdcInsn{Value: v}
		case op == IINC:
			insn = &IincInsn{Var: int(ops[0]), Incr: int(int8(ops[1]))}
		case op == WIDE:
			wop := int(ops[0])
			if wop == IINC {
				insn = &IincInsn{Var: u2(ops[1:]), Incr: s2(ops[3:])}
			} else {
				insn = &VarInsn{Opcode: wop, Var: u2(ops[1:])}
			}
		case op >= IFEQ && op <= JSR, op == IFNULL, op == IFNONNULL:
			insn = &JumpInsn{Opcode: op, Target: labels.at(pc + s2(ops))}
		case op == GOTO_W:
			insn = &JumpInsn{Opcode: GOTO, Target: labels.at(pc + s4(ops))}
		case op == JSR_W:
			insn = &JumpInsn{Opcode: JSR, Target: labels.at(pc + s4(ops))}
		case op == TABLESWITCH:
			base := pc + 1 + (3 - pc&3)
			ts := &TableSwitchInsn{
				Default: labels.at(pc + s4(code[base:])),
				Min:     int32(s4(code[base+4:])),
				Max:     int32(s4(code[base+8:])),
			}
			for i := base + 12; i < pc+n; i += 4 {
				ts.Labels = append(ts.Labels, labels.at(pc+s4(code[i:])))
			}
			insn = ts
		case op == LOOKUPSWITCH:
			base := pc + 1 + (3 - pc&3)
			ls := &LookupSwitchInsn{Default: labels.at(pc + s4(code[base:]))}
			for i := base + 8; i < pc+n; i += 8 {
				ls.Keys = append(ls.Keys, int32(s4(code[i:])))
				ls.Labels = append(ls.Labels, labels.at(pc+s4(code[i+4:])))
			}
			insn = ls
		case op >= GETSTATIC && op <= PUTFIELD:
			owner, name, desc, _, err := p.memberRef(u2(ops))
			if err != nil {
				return nil, fmt.Errorf("%s at %d: %w", OpName(op), pc, err)
			}
			insn = &FieldInsn{Opcode: op, Owner: owner, Name: name, Desc: desc}
		case op >= INVOKEVIRTUAL && op <= INVOKEINTERFACE:
			owner, name, desc, itf, err := p.memberRef(u2(ops))
			if err != nil {
				return nil, fmt.Errorf("%s at %d: %w", OpName(op), pc, err)
			}
			insn = &MethodInsn{Opcode: op, Owner: owner, Name: name, Desc: desc, Itf: itf}
		case op == INVOKEDYNAMIC:
			indy, err := p.invokeDynamic(u2(ops))
			if err != nil {
				return nil, fmt.Errorf("invokedynamic at %d: %w", pc, err)
			}
			insn = indy
		case op == NEW, op == ANEWARRAY, op == CHECKCAST, op == INSTANCEOF:
			name, err := p.className(u2(ops))
			if err != nil {
				return nil, fmt.Errorf("%s at %d: %w", OpName(op), pc, err)
			}
			insn = &TypeInsn{Opcode: op, Desc: name}
		case op == MULTIANEWARRAY:
			name, err := p.className(u2(ops))
			if err != nil {
				return nil, fmt.Errorf("multianewarray at %d: %w", pc, err)
			}
			insn = &MultiANewArrayInsn{Desc: name, Dims: int(ops[2])}
		default:
			insn = &SimpleInsn{Opcode: op}
		}
		out = append(out, insn)
		pc += n
	}
	mark(len(code))
	return out, nil
}

func (p *parser) invokeDynamic(idx int) (*InvokeDynamicInsn, error) {
	e, err := p.entry(idx, tagInvokeDynamic)
	if err != nil {
		return nil, err
	}
	if int(e.a) >= len(p.bsms) {
		return nil, fmt.Errorf("classfile: bootstrap method %d out of range", e.a)
	}
	name, desc, err := p.nameAndType(int(e.b))
	if err != nil {
		return nil, err
	}
	b := p.bsms[e.a]
	bsm, err := p.handle(b.handle)
	if err != nil {
		return nil, err
	}
	indy := &InvokeDynamicInsn{Name: name, Desc: desc, Bsm: bsm}
	for _, a := range b.args {
		v, err := p.constant(a)
		if err != nil {
			return nil, err
		}
		indy.BsmArgs = append(indy.BsmArgs, v)
	}
	return indy, nil
}
