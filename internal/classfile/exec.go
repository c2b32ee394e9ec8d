package classfile

import (
	"errors"
	"fmt"
)

var errUnderflow = errors.New("operand stack underflow")

func (f *frame) push(ts ...vtype) { f.stack = append(f.stack, ts...) }

func (f *frame) pop(n int) ([]vtype, error) {
	if n > len(f.stack) {
		return nil, errUnderflow
	}
	out := f.stack[len(f.stack)-n:]
	f.stack = f.stack[:len(f.stack)-n]
	return out, nil
}

func (f *frame) pop1() (vtype, error) {
	ts, err := f.pop(1)
	if err != nil {
		return top, err
	}
	return ts[0], nil
}

func (f *frame) store(i int, ts ...vtype) error {
	if i+len(ts) > len(f.locals) {
		return fmt.Errorf("local %d out of range", i)
	}
	if i > 0 && f.locals[i-1].wide() {
		f.locals[i-1] = top
	}
	copy(f.locals[i:], ts)
	return nil
}

// replace swaps every occurrence of from with to, used when a constructor
// call initializes an object.
func (f *frame) replace(from, to vtype) {
	for i, t := range f.locals {
		if t == from {
			f.locals[i] = to
		}
	}
	for i, t := range f.stack {
		if t == from {
			f.stack[i] = to
		}
	}
}

func ldcType(v any) ([]vtype, error) {
	switch v := v.(type) {
	case int32:
		return []vtype{vint}, nil
	case float32:
		return []vtype{vflt}, nil
	case int64:
		return []vtype{vlng, top}, nil
	case float64:
		return []vtype{vdbl, top}, nil
	case string:
		return []vtype{object("java/lang/String")}, nil
	case Type:
		if v.IsMethod() {
			return []vtype{object("java/lang/invoke/MethodType")}, nil
		}
		return []vtype{object("java/lang/Class")}, nil
	case Handle:
		return []vtype{object("java/lang/invoke/MethodHandle")}, nil
	}
	return nil, fmt.Errorf("unsupported constant %T", v)
}

// stackShape is the pop count and pushed types of opcodes whose effect does
// not depend on operands.
type stackShape struct {
	pop  int
	push []vtype
}

var simpleShapes = func() map[int]stackShape {
	s := map[int]stackShape{
		NOP:         {0, nil},
		ACONST_NULL: {0, []vtype{vnull}},
		LCONST_0:    {0, []vtype{vlng, top}},
		LCONST_1:    {0, []vtype{vlng, top}},
		FCONST_0:    {0, []vtype{vflt}},
		FCONST_1:    {0, []vtype{vflt}},
		FCONST_2:    {0, []vtype{vflt}},
		DCONST_0:    {0, []vtype{vdbl, top}},
		DCONST_1:    {0, []vtype{vdbl, top}},
		BIPUSH:      {0, []vtype{vint}},
		SIPUSH:      {0, []vtype{vint}},

		IALOAD: {2, []vtype{vint}},
		BALOAD: {2, []vtype{vint}},
		CALOAD: {2, []vtype{vint}},
		SALOAD: {2, []vtype{vint}},
		LALOAD: {2, []vtype{vlng, top}},
		FALOAD: {2, []vtype{vflt}},
		DALOAD: {2, []vtype{vdbl, top}},

		IASTORE: {3, nil},
		BASTORE: {3, nil},
		CASTORE: {3, nil},
		SASTORE: {3, nil},
		FASTORE: {3, nil},
		AASTORE: {3, nil},
		LASTORE: {4, nil},
		DASTORE: {4, nil},

		POP:  {1, nil},
		POP2: {2, nil},

		INEG: {1, []vtype{vint}},
		LNEG: {2, []vtype{vlng, top}},
		FNEG: {1, []vtype{vflt}},
		DNEG: {2, []vtype{vdbl, top}},
		LSHL: {3, []vtype{vlng, top}},
		LSHR: {3, []vtype{vlng, top}},

		LUSHR: {3, []vtype{vlng, top}},
		I2L:   {1, []vtype{vlng, top}},
		I2F:   {1, []vtype{vflt}},
		I2D:   {1, []vtype{vdbl, top}},
		L2I:   {2, []vtype{vint}},
		L2F:   {2, []vtype{vflt}},
		L2D:   {2, []vtype{vdbl, top}},
		F2I:   {1, []vtype{vint}},
		F2L:   {1, []vtype{vlng, top}},
		F2D:   {1, []vtype{vdbl, top}},
		D2I:   {2, []vtype{vint}},
		D2L:   {2, []vtype{vlng, top}},
		D2F:   {2, []vtype{vflt}},
		I2B:   {1, []vtype{vint}},
		I2C:   {1, []vtype{vint}},
		I2S:   {1, []vtype{vint}},
		LCMP:  {4, []vtype{vint}},
		FCMPL: {2, []vtype{vint}},
		FCMPG: {2, []vtype{vint}},
		DCMPL: {4, []vtype{vint}},
		DCMPG: {4, []vtype{vint}},

		IRETURN: {1, nil},
		FRETURN: {1, nil},
		ARETURN: {1, nil},
		LRETURN: {2, nil},
		DRETURN: {2, nil},
		RETURN:  {0, nil},
		ATHROW:  {1, nil},

		ARRAYLENGTH:  {1, []vtype{vint}},
		MONITORENTER: {1, nil},
		MONITOREXIT:  {1, nil},

		TABLESWITCH:  {1, nil},
		LOOKUPSWITCH: {1, nil},
		GOTO:         {0, nil},
		IFNULL:       {1, nil},
		IFNONNULL:    {1, nil},
	}
	for op := ICONST_M1; op <= ICONST_5; op++ {
		s[op] = stackShape{0, []vtype{vint}}
	}
	for _, op := range []int{IADD, ISUB, IMUL, IDIV, IREM, ISHL, ISHR, IUSHR, IAND, IOR, IXOR} {
		s[op] = stackShape{2, []vtype{vint}}
	}
	for _, op := range []int{LADD, LSUB, LMUL, LDIV, LREM, LAND, LOR, LXOR} {
		s[op] = stackShape{4, []vtype{vlng, top}}
	}
	for _, op := range []int{FADD, FSUB, FMUL, FDIV, FREM} {
		s[op] = stackShape{2, []vtype{vflt}}
	}
	for _, op := range []int{DADD, DSUB, DMUL, DDIV, DREM} {
		s[op] = stackShape{4, []vtype{vdbl, top}}
	}
	for op := IFEQ; op <= IFLE; op++ {
		s[op] = stackShape{1, nil}
	}
	for op := IF_ICMPEQ; op <= IF_ACMPNE; op++ {
		s[op] = stackShape{2, nil}
	}
	return s
}()

// execute applies real instruction k to f.
func (a *analysis) execute(k int, f *frame) error {
	insn := a.insns[k]
	op := insn.Op()

	if a.frames && (op == JSR || op == RET) {
		return fmt.Errorf("%w: %s requires a class version below 50", ErrUnsupported, OpName(op))
	}

	switch in := insn.(type) {
	case *LdcInsn:
		ts, err := ldcType(in.Value)
		if err != nil {
			return err
		}
		f.push(ts...)
		return nil

	case *VarInsn:
		switch in.Opcode {
		case ILOAD:
			f.push(vint)
		case FLOAD:
			f.push(vflt)
		case LLOAD:
			f.push(vlng, top)
		case DLOAD:
			f.push(vdbl, top)
		case ALOAD:
			if in.Var >= len(f.locals) {
				return fmt.Errorf("local %d out of range", in.Var)
			}
			f.push(f.locals[in.Var])
		case ISTORE, FSTORE, ASTORE:
			t, err := f.pop1()
			if err != nil {
				return err
			}
			return f.store(in.Var, t)
		case LSTORE, DSTORE:
			ts, err := f.pop(2)
			if err != nil {
				return err
			}
			return f.store(in.Var, ts[0], top)
		case RET:
		}
		return nil

	case *IincInsn:
		return f.store(in.Var, vint)

	case *IntInsn:
		if in.Opcode == NEWARRAY {
			if _, err := f.pop1(); err != nil {
				return err
			}
			elem, ok := NewArrayTypes[in.Operand]
			if !ok {
				return fmt.Errorf("invalid newarray type %d", in.Operand)
			}
			f.push(object("[" + elem))
			return nil
		}

	case *JumpInsn:
		if in.Opcode == JSR {
			f.push(top) // return address
			return nil
		}

	case *TypeInsn:
		switch in.Opcode {
		case NEW:
			f.push(vtype{kind: vUninit, off: a.pcs[k]})
			return nil
		case ANEWARRAY:
			if _, err := f.pop1(); err != nil {
				return err
			}
			f.push(object("[" + classDesc(in.Desc)))
			return nil
		case CHECKCAST:
			if _, err := f.pop1(); err != nil {
				return err
			}
			f.push(object(in.Desc))
			return nil
		case INSTANCEOF:
			if _, err := f.pop1(); err != nil {
				return err
			}
			f.push(vint)
			return nil
		}

	case *FieldInsn:
		size := DescSize(in.Desc)
		switch in.Opcode {
		case GETSTATIC:
			f.push(descTypes(in.Desc)...)
			return nil
		case PUTSTATIC:
			_, err := f.pop(size)
			return err
		case GETFIELD:
			if _, err := f.pop1(); err != nil {
				return err
			}
			f.push(descTypes(in.Desc)...)
			return nil
		case PUTFIELD:
			_, err := f.pop(size + 1)
			return err
		}

	case *MethodInsn:
		return a.invoke(f, in.Opcode, in.Owner, in.Name, in.Desc)

	case *InvokeDynamicInsn:
		return a.invoke(f, INVOKESTATIC, "", in.Name, in.Desc)

	case *MultiANewArrayInsn:
		if _, err := f.pop(in.Dims); err != nil {
			return err
		}
		f.push(object(in.Desc))
		return nil

	case *SimpleInsn:
		if op == AALOAD {
			if _, err := f.pop1(); err != nil {
				return err
			}
			arr, err := f.pop1()
			if err != nil {
				return err
			}
			f.push(elementType(arr))
			return nil
		}
		if ok, err := f.shuffle(op); ok || err != nil {
			return err
		}
	}

	shape, ok := simpleShapes[op]
	if !ok {
		return fmt.Errorf("unhandled opcode %s", OpName(op))
	}
	if _, err := f.pop(shape.pop); err != nil {
		return err
	}
	f.push(shape.push...)
	return nil
}

func elementType(arr vtype) vtype {
	if arr.kind != vObject || len(arr.name) < 2 || arr.name[0] != '[' {
		if arr.kind == vNull {
			return vnull
		}
		return object(objectClass)
	}
	return descTypes(arr.name[1:])[0]
}

func (a *analysis) invoke(f *frame, op int, owner, name, desc string) error {
	params, ret, err := SplitMethodDesc(desc)
	if err != nil {
		return err
	}
	n := 0
	for _, p := range params {
		n += DescSize(p)
	}
	if _, err := f.pop(n); err != nil {
		return err
	}
	if op != INVOKESTATIC {
		recv, err := f.pop1()
		if err != nil {
			return err
		}
		if op == INVOKESPECIAL && name == "<init>" {
			switch recv.kind {
			case vUninitThis:
				f.replace(recv, object(a.owner))
			case vUninit:
				f.replace(recv, object(a.newType[recv.off]))
			}
		}
	}
	if ret != "V" {
		f.push(descTypes(ret)...)
	}
	return nil
}

// shuffle applies the DUP/SWAP family, which rearrange stack slots without
// looking at their types.
func (f *frame) shuffle(op int) (bool, error) {
	var take int
	var order []int // indexes into the popped slots, bottom first
	switch op {
	case DUP:
		take, order = 1, []int{0, 0}
	case DUP_X1:
		take, order = 2, []int{1, 0, 1}
	case DUP_X2:
		take, order = 3, []int{2, 0, 1, 2}
	case DUP2:
		take, order = 2, []int{0, 1, 0, 1}
	case DUP2_X1:
		take, order = 3, []int{1, 2, 0, 1, 2}
	case DUP2_X2:
		take, order = 4, []int{2, 3, 0, 1, 2, 3}
	case SWAP:
		take, order = 2, []int{1, 0}
	default:
		return false, nil
	}
	popped, err := f.pop(take)
	if err != nil {
		return true, err
	}
	vals := append([]vtype(nil), popped...)
	for _, i := range order {
		f.push(vals[i])
	}
	return true, nil
}
