package asm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bcdiff/internal/classfile"
	"bcdiff/internal/ir"
)

// decoder builds one instruction from its operand tokens.
type decoder func(b *body, op int, args []string) (classfile.Insn, error)

type mnemonic struct {
	op     int
	decode decoder
}

// mnemonics is the instruction table: every mnemonic the assembler accepts,
// the opcode it produces, and how its operands are read.
var mnemonics = buildMnemonics()

func buildMnemonics() map[string]mnemonic {
	t := map[string]mnemonic{}
	add := func(d decoder, ops ...int) {
		for _, op := range ops {
			t[classfile.OpName(op)] = mnemonic{op, d}
		}
	}
	add(simple,
		classfile.NOP, classfile.ACONST_NULL,
		classfile.ICONST_M1, classfile.ICONST_0, classfile.ICONST_1, classfile.ICONST_2,
		classfile.ICONST_3, classfile.ICONST_4, classfile.ICONST_5,
		classfile.LCONST_0, classfile.LCONST_1,
		classfile.FCONST_0, classfile.FCONST_1, classfile.FCONST_2,
		classfile.DCONST_0, classfile.DCONST_1)
	for op := classfile.IALOAD; op <= classfile.SALOAD; op++ {
		add(simple, op)
	}
	for op := classfile.IASTORE; op <= classfile.LXOR; op++ {
		add(simple, op)
	}
	for op := classfile.I2L; op <= classfile.DCMPG; op++ {
		add(simple, op)
	}
	for op := classfile.IRETURN; op <= classfile.RETURN; op++ {
		add(simple, op)
	}
	add(simple, classfile.ARRAYLENGTH, classfile.ATHROW, classfile.MONITORENTER, classfile.MONITOREXIT)

	add(push, classfile.BIPUSH, classfile.SIPUSH)
	add(newArray, classfile.NEWARRAY)
	add(varInsn,
		classfile.ILOAD, classfile.LLOAD, classfile.FLOAD, classfile.DLOAD, classfile.ALOAD,
		classfile.ISTORE, classfile.LSTORE, classfile.FSTORE, classfile.DSTORE, classfile.ASTORE,
		classfile.RET)
	add(iinc, classfile.IINC)
	add(typeInsn, classfile.NEW, classfile.ANEWARRAY, classfile.CHECKCAST, classfile.INSTANCEOF)
	add(fieldInsn, classfile.GETSTATIC, classfile.PUTSTATIC, classfile.GETFIELD, classfile.PUTFIELD)
	add(methodInsn, classfile.INVOKEVIRTUAL, classfile.INVOKESPECIAL, classfile.INVOKESTATIC, classfile.INVOKEINTERFACE)
	add(invokeDynamic, classfile.INVOKEDYNAMIC)
	for op := classfile.IFEQ; op <= classfile.JSR; op++ {
		add(jump, op)
	}
	add(jump, classfile.IFNULL, classfile.IFNONNULL)
	add(ldc, classfile.LDC)
	add(tableSwitch, classfile.TABLESWITCH)
	add(lookupSwitch, classfile.LOOKUPSWITCH)
	add(multiANewArray, classfile.MULTIANEWARRAY)

	// Alternate encodings collapse onto the tree form; the writer picks the
	// encoding again.
	t["LDC_W"] = t["LDC"]
	t["LDC2_W"] = t["LDC"]
	t["GOTO_W"] = t["GOTO"]
	t["JSR_W"] = t["JSR"]
	for i, base := range []int{
		classfile.ILOAD, classfile.LLOAD, classfile.FLOAD, classfile.DLOAD, classfile.ALOAD,
		classfile.ISTORE, classfile.LSTORE, classfile.FSTORE, classfile.DSTORE, classfile.ASTORE,
	} {
		for slot := 0; slot < 4; slot++ {
			name := fmt.Sprintf("%s_%d", classfile.OpName(base), slot)
			t[name] = mnemonic{base, shortcut(slot, i%5 == 1 || i%5 == 3)}
		}
	}
	return t
}

func parseInt(tok string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", tok)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", v, lo, hi)
	}
	return v, nil
}

func want(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("takes %d operands, got %d", n, len(args))
	}
	return nil
}

func simple(_ *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 0); err != nil {
		return nil, err
	}
	return &classfile.SimpleInsn{Opcode: op}, nil
}

func push(_ *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	lo, hi := -128, 127
	if op == classfile.SIPUSH {
		lo, hi = -32768, 32767
	}
	v, err := parseInt(args[0], lo, hi)
	if err != nil {
		return nil, err
	}
	return &classfile.IntInsn{Opcode: op, Operand: v}, nil
}

var newArrayCodes = func() map[string]int {
	m := map[string]int{}
	for code, desc := range classfile.NewArrayTypes {
		m[desc] = code
	}
	return m
}()

// newArray reads the element type as a primitive descriptor (I, J, Z, ...).
func newArray(_ *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	code, ok := newArrayCodes[args[0]]
	if !ok {
		return nil, fmt.Errorf("bad primitive array type %q", args[0])
	}
	return &classfile.IntInsn{Opcode: op, Operand: code}, nil
}

func isWideVar(op int) bool {
	switch op {
	case classfile.LLOAD, classfile.DLOAD, classfile.LSTORE, classfile.DSTORE:
		return true
	}
	return false
}

func varInsn(b *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	slot, err := b.locals.resolve(args[0], isWideVar(op))
	if err != nil {
		return nil, err
	}
	return &classfile.VarInsn{Opcode: op, Var: slot}, nil
}

func shortcut(slot int, wide bool) decoder {
	return func(b *body, op int, args []string) (classfile.Insn, error) {
		if err := want(args, 0); err != nil {
			return nil, err
		}
		b.locals.claim(slot, wide)
		return &classfile.VarInsn{Opcode: op, Var: slot}, nil
	}
}

func iinc(b *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 2); err != nil {
		return nil, err
	}
	slot, err := b.locals.resolve(args[0], false)
	if err != nil {
		return nil, err
	}
	incr, err := parseInt(args[1], -32768, 32767)
	if err != nil {
		return nil, err
	}
	return &classfile.IincInsn{Var: slot, Incr: incr}, nil
}

// validClassRef accepts an internal name or an array descriptor.
func validClassRef(s string) bool {
	if strings.HasPrefix(s, "[") {
		return classfile.ValidFieldDesc(s)
	}
	return s != "" && !strings.ContainsAny(s, ".;[ ")
}

func typeInsn(_ *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	if !validClassRef(args[0]) {
		return nil, fmt.Errorf("bad class reference %q", args[0])
	}
	return &classfile.TypeInsn{Opcode: op, Desc: args[0]}, nil
}

// memberRef splits owner.member on the first dot.
func memberRef(tok string) (owner, member string, err error) {
	owner, member, ok := strings.Cut(tok, ".")
	if !ok || owner == "" || member == "" {
		return "", "", fmt.Errorf("expected owner.member, got %q", tok)
	}
	if !validClassRef(owner) {
		return "", "", fmt.Errorf("bad owner %q", owner)
	}
	return owner, member, nil
}

func fieldInsn(_ *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 2); err != nil {
		return nil, err
	}
	owner, name, err := memberRef(args[0])
	if err != nil {
		return nil, err
	}
	if !classfile.ValidFieldDesc(args[1]) {
		return nil, fmt.Errorf("bad field descriptor %q", args[1])
	}
	return &classfile.FieldInsn{Opcode: op, Owner: owner, Name: name, Desc: args[1]}, nil
}

func methodInsn(_ *body, op int, args []string) (classfile.Insn, error) {
	itf := op == classfile.INVOKEINTERFACE
	switch {
	case len(args) == 2 && args[1] == ir.Itf:
		itf = true
	case len(args) != 1:
		return nil, fmt.Errorf("expected owner.name(desc)ret [%s]", ir.Itf)
	}
	owner, ref, err := memberRef(args[0])
	if err != nil {
		return nil, err
	}
	name, desc, err := ir.SplitMethodRef(ref)
	if err != nil {
		return nil, err
	}
	return &classfile.MethodInsn{Opcode: op, Owner: owner, Name: name, Desc: desc, Itf: itf}, nil
}

// invokeDynamic reads name desc handle args[a, b, ...]. Each bootstrap
// argument is a handle, the method alias, or a constant literal.
func invokeDynamic(b *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 4); err != nil {
		return nil, err
	}
	if _, _, err := classfile.SplitMethodDesc(args[1]); err != nil {
		return nil, fmt.Errorf("bad call site descriptor %q", args[1])
	}
	bsm, err := b.handle(args[2])
	if err != nil {
		return nil, err
	}
	list, ok := ir.Bracketed(args[3], "args")
	if !ok {
		return nil, fmt.Errorf("expected args[...], got %q", args[3])
	}
	in := &classfile.InvokeDynamicInsn{Name: args[0], Desc: args[1], Bsm: bsm}
	for _, tok := range ir.List(list) {
		var v any
		if tok == ir.MetaAliasRef {
			v, err = b.handle(tok)
		} else {
			v, err = ir.ParseConst(tok)
		}
		if err != nil {
			return nil, err
		}
		in.BsmArgs = append(in.BsmArgs, v)
	}
	return in, nil
}

func jump(b *body, op int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	l, err := b.labels.ref(args[0], b.line)
	if err != nil {
		return nil, err
	}
	return &classfile.JumpInsn{Opcode: op, Target: l}, nil
}

func ldc(_ *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 1); err != nil {
		return nil, err
	}
	v, err := ir.ParseConst(args[0])
	if err != nil {
		return nil, err
	}
	return &classfile.LdcInsn{Value: v}, nil
}

func (b *body) defaultLabel(tok string) (*classfile.Label, error) {
	name, ok := ir.Bracketed(tok, "default")
	if !ok {
		return nil, fmt.Errorf("expected default[label], got %q", tok)
	}
	return b.labels.ref(name, b.line)
}

// tableSwitch reads range[min:max] offsets[A, B, ...] default[L].
func tableSwitch(b *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 3); err != nil {
		return nil, err
	}
	rng, ok := ir.Bracketed(args[0], "range")
	if !ok {
		return nil, fmt.Errorf("expected range[min:max], got %q", args[0])
	}
	lo, hi, ok := strings.Cut(rng, ":")
	if !ok {
		return nil, fmt.Errorf("expected range[min:max], got %q", args[0])
	}
	minKey, err := strconv.ParseInt(lo, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad switch key %q", lo)
	}
	maxKey, err := strconv.ParseInt(hi, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad switch key %q", hi)
	}
	if maxKey < minKey {
		return nil, fmt.Errorf("empty switch range %d:%d", minKey, maxKey)
	}
	offsets, ok := ir.Bracketed(args[1], "offsets")
	if !ok {
		return nil, fmt.Errorf("expected offsets[...], got %q", args[1])
	}
	names := ir.List(offsets)
	if int64(len(names)) != maxKey-minKey+1 {
		return nil, fmt.Errorf("range %d:%d needs %d labels, got %d", minKey, maxKey, maxKey-minKey+1, len(names))
	}
	in := &classfile.TableSwitchInsn{Min: int32(minKey), Max: int32(maxKey)}
	for _, name := range names {
		l, err := b.labels.ref(name, b.line)
		if err != nil {
			return nil, err
		}
		in.Labels = append(in.Labels, l)
	}
	if in.Default, err = b.defaultLabel(args[2]); err != nil {
		return nil, err
	}
	return in, nil
}

// lookupSwitch reads mapping[k=L, ...] default[L].
func lookupSwitch(b *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 2); err != nil {
		return nil, err
	}
	mapping, ok := ir.Bracketed(args[0], "mapping")
	if !ok {
		return nil, fmt.Errorf("expected mapping[...], got %q", args[0])
	}
	type pair struct {
		key   int32
		label *classfile.Label
	}
	var pairs []pair
	seen := map[int32]bool{}
	for _, kv := range ir.List(mapping) {
		k, name, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=label, got %q", kv)
		}
		key, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad switch key %q", k)
		}
		if seen[int32(key)] {
			return nil, fmt.Errorf("duplicate switch key %d", key)
		}
		seen[int32(key)] = true
		l, err := b.labels.ref(name, b.line)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{int32(key), l})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	in := &classfile.LookupSwitchInsn{}
	for _, p := range pairs {
		in.Keys = append(in.Keys, p.key)
		in.Labels = append(in.Labels, p.label)
	}
	var err error
	if in.Default, err = b.defaultLabel(args[1]); err != nil {
		return nil, err
	}
	return in, nil
}

func multiANewArray(_ *body, _ int, args []string) (classfile.Insn, error) {
	if err := want(args, 2); err != nil {
		return nil, err
	}
	desc := args[0]
	if !strings.HasPrefix(desc, "[") || !classfile.ValidFieldDesc(desc) {
		return nil, fmt.Errorf("bad array descriptor %q", desc)
	}
	dims := len(desc) - len(strings.TrimLeft(desc, "["))
	n, err := parseInt(args[1], 1, dims)
	if err != nil {
		return nil, err
	}
	return &classfile.MultiANewArrayInsn{Desc: desc, Dims: n}, nil
}
