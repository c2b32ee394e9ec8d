package classfile

import (
	"fmt"
	"slices"
	"strings"
)

// MergeFunc returns the nearest common super type of two internal class
// names. It is called only for distinct non-array reference types.
type MergeFunc func(a, b string) (string, error)

const (
	objectClass    = "java/lang/Object"
	throwableClass = "java/lang/Throwable"
)

type vkind uint8

const (
	vTop vkind = iota
	vInt
	vFloat
	vDouble
	vLong
	vNull
	vUninitThis
	vObject
	vUninit
)

// vtype is one verification type. Long and double occupy two slots; the
// second slot holds vTop.
type vtype struct {
	kind vkind
	name string // vObject: internal name or array descriptor
	off  int    // vUninit: offset of the NEW instruction
}

var (
	top   = vtype{kind: vTop}
	vint  = vtype{kind: vInt}
	vflt  = vtype{kind: vFloat}
	vlng  = vtype{kind: vLong}
	vdbl  = vtype{kind: vDouble}
	vnull = vtype{kind: vNull}
)

func object(name string) vtype { return vtype{kind: vObject, name: name} }

func (t vtype) wide() bool { return t.kind == vLong || t.kind == vDouble }

// descTypes returns the slot types of a field descriptor.
func descTypes(desc string) []vtype {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return []vtype{vint}
	case 'F':
		return []vtype{vflt}
	case 'J':
		return []vtype{vlng, top}
	case 'D':
		return []vtype{vdbl, top}
	case 'L':
		return []vtype{object(desc[1 : len(desc)-1])}
	case '[':
		return []vtype{object(desc)}
	}
	return nil // V
}

// classDesc turns an internal name or array descriptor into a descriptor.
func classDesc(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

type frame struct {
	locals []vtype
	stack  []vtype
}

func (f *frame) clone() *frame {
	return &frame{locals: slices.Clone(f.locals), stack: slices.Clone(f.stack)}
}

// analysis is the dataflow state of one method.
type analysis struct {
	owner  string
	m      *Method
	merge  MergeFunc
	frames bool // false for pre-version-50 classes: heights only

	insns   []Insn      // real instructions
	pcs     []int       // offset of each real instruction, plus code length
	target  map[*Label]int
	newType map[int]string
	in      []*frame
	start   *frame

	maxStack  int
	maxLocals int
}

func newAnalysis(owner string, m *Method, pcs map[Insn]int, codeLen int, merge MergeFunc, frames bool) *analysis {
	a := &analysis{
		owner:   owner,
		m:       m,
		merge:   merge,
		frames:  frames,
		target:  map[*Label]int{},
		newType: map[int]string{},
	}
	var pending []*Label
	for _, in := range m.Insns {
		switch in := in.(type) {
		case *Label:
			pending = append(pending, in)
			continue
		case *LineNumber:
			continue
		}
		for _, l := range pending {
			a.target[l] = len(a.insns)
		}
		pending = pending[:0]
		if t, ok := in.(*TypeInsn); ok && t.Opcode == NEW {
			a.newType[pcs[in]] = t.Desc
		}
		a.insns = append(a.insns, in)
		a.pcs = append(a.pcs, pcs[in])
	}
	for _, l := range pending {
		a.target[l] = len(a.insns)
	}
	a.pcs = append(a.pcs, codeLen)
	return a
}

// localsSize scans the method for the highest local slot touched.
func (a *analysis) localsSize() (int, error) {
	n, err := ArgsSize(a.m.Desc, a.m.IsStatic())
	if err != nil {
		return 0, err
	}
	use := func(v, size int) {
		if v+size > n {
			n = v + size
		}
	}
	for _, in := range a.insns {
		switch in := in.(type) {
		case *VarInsn:
			switch in.Opcode {
			case LLOAD, DLOAD, LSTORE, DSTORE:
				use(in.Var, 2)
			default:
				use(in.Var, 1)
			}
		case *IincInsn:
			use(in.Var, 1)
		}
	}
	for _, lv := range a.m.LocalVars {
		use(lv.Index, DescSize(lv.Desc))
	}
	return n, nil
}

func (a *analysis) initial() (*frame, error) {
	f := &frame{locals: make([]vtype, a.maxLocals)}
	for i := range f.locals {
		f.locals[i] = top
	}
	i := 0
	if !a.m.IsStatic() {
		if a.m.Name == "<init>" && a.owner != objectClass {
			f.locals[0] = vtype{kind: vUninitThis}
		} else {
			f.locals[0] = object(a.owner)
		}
		i = 1
	}
	params, _, err := SplitMethodDesc(a.m.Desc)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		for _, t := range descTypes(p) {
			f.locals[i] = t
			i++
		}
	}
	return f, nil
}

// covering returns the exception handlers active at real instruction k.
func (a *analysis) covering(k int) []TryCatch {
	var out []TryCatch
	pc := a.pcs[k]
	for _, tc := range a.m.TryCatch {
		if pc >= tc.Start.offset && pc < tc.End.offset {
			out = append(out, tc)
		}
	}
	return out
}

// successors lists the real instruction indexes control can reach from k.
// JSR falls through to the next instruction as well as entering the
// subroutine.
func (a *analysis) successors(k int) ([]int, error) {
	switch in := a.insns[k].(type) {
	case *JumpInsn:
		t := a.target[in.Target]
		if in.Opcode == GOTO {
			return []int{t}, nil
		}
		return []int{k + 1, t}, nil
	case *TableSwitchInsn:
		out := []int{a.target[in.Default]}
		for _, l := range in.Labels {
			out = append(out, a.target[l])
		}
		return out, nil
	case *LookupSwitchInsn:
		out := []int{a.target[in.Default]}
		for _, l := range in.Labels {
			out = append(out, a.target[l])
		}
		return out, nil
	case *VarInsn:
		if in.Opcode == RET {
			return nil, nil
		}
	case *SimpleInsn:
		if (in.Opcode >= IRETURN && in.Opcode <= RETURN) || in.Opcode == ATHROW {
			return nil, nil
		}
	}
	return []int{k + 1}, nil
}

func unconditional(in Insn) bool {
	switch in.Op() {
	case GOTO, TABLESWITCH, LOOKUPSWITCH, ATHROW, RET,
		IRETURN, LRETURN, FRETURN, DRETURN, ARETURN, RETURN:
		return true
	}
	return false
}

// run propagates frames to a fixed point.
func (a *analysis) run() error {
	var err error
	if a.maxLocals, err = a.localsSize(); err != nil {
		return err
	}
	n := len(a.insns)
	a.in = make([]*frame, n)
	if n == 0 {
		return fmt.Errorf("classfile: method %s%s has no instructions", a.m.Name, a.m.Desc)
	}
	if a.start, err = a.initial(); err != nil {
		return err
	}
	a.in[0] = a.start.clone()
	joins, err := a.joinPoints()
	if err != nil {
		return err
	}

	work := []int{0}
	queued := make([]bool, n)
	queued[0] = true
	flow := func(t int, f *frame) error {
		if t >= n {
			return fmt.Errorf("classfile: execution falls off the end of %s%s", a.m.Name, a.m.Desc)
		}
		switch {
		case a.in[t] == nil:
			a.in[t] = f.clone()
		case !joins[t]:
			// A single predecessor: its latest frame replaces the old one.
			if slices.Equal(a.in[t].locals, f.locals) && slices.Equal(a.in[t].stack, f.stack) {
				return nil
			}
			a.in[t] = f.clone()
		default:
			changed, err := a.mergeInto(a.in[t], f)
			if err != nil {
				return fmt.Errorf("at offset %d: %w", a.pcs[t], err)
			}
			if !changed {
				return nil
			}
		}
		if !queued[t] {
			queued[t] = true
			work = append(work, t)
		}
		return nil
	}

	for len(work) > 0 {
		k := work[len(work)-1]
		work = work[:len(work)-1]
		queued[k] = false

		cur := a.in[k]
		a.maxStack = max(a.maxStack, len(cur.stack))
		for _, tc := range a.covering(k) {
			exc := throwableClass
			if tc.Type != "" {
				exc = tc.Type
			}
			hf := &frame{locals: cur.locals, stack: []vtype{object(exc)}}
			if err := flow(a.target[tc.Handler], hf); err != nil {
				return err
			}
		}

		out := cur.clone()
		if err := a.execute(k, out); err != nil {
			return fmt.Errorf("classfile: %s%s at offset %d: %w", a.m.Name, a.m.Desc, a.pcs[k], err)
		}
		a.maxStack = max(a.maxStack, len(out.stack))

		succ, err := a.successors(k)
		if err != nil {
			return err
		}
		for i, t := range succ {
			f := out
			if i == 0 && a.insns[k].Op() == JSR {
				// Return point: the subroutine consumed its address.
				f = cur
			}
			if err := flow(t, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// joinPoints marks the instructions reached from more than one place.
// Frames are merged only there; the entry counts as one extra predecessor.
func (a *analysis) joinPoints() ([]bool, error) {
	n := len(a.insns)
	preds := make([]int, n+1)
	preds[0] = 1
	for k := 0; k < n; k++ {
		succ, err := a.successors(k)
		if err != nil {
			return nil, err
		}
		for _, tc := range a.covering(k) {
			succ = append(succ, a.target[tc.Handler])
		}
		slices.Sort(succ)
		for _, t := range slices.Compact(succ) {
			if t <= n {
				preds[t]++
			}
		}
	}
	joins := make([]bool, n)
	for k := range joins {
		joins[k] = preds[k] > 1
	}
	return joins, nil
}

func (a *analysis) mergeInto(dst, src *frame) (bool, error) {
	if len(dst.stack) != len(src.stack) {
		return false, fmt.Errorf("%w: %d vs %d", ErrInconsistentStack, len(dst.stack), len(src.stack))
	}
	changed := false
	join := func(d []vtype, s []vtype) error {
		for i := range d {
			t, err := a.mergeType(d[i], s[i])
			if err != nil {
				return err
			}
			if t != d[i] {
				d[i] = t
				changed = true
			}
		}
		return nil
	}
	if err := join(dst.locals, src.locals); err != nil {
		return false, err
	}
	if err := join(dst.stack, src.stack); err != nil {
		return false, err
	}
	// A two-slot value whose upper half was invalidated is no longer usable.
	for i, t := range dst.locals {
		if t.wide() && (i+1 >= len(dst.locals) || dst.locals[i+1] != top) {
			dst.locals[i] = top
			changed = true
		}
	}
	return changed, nil
}

func (a *analysis) mergeType(x, y vtype) (vtype, error) {
	if x == y {
		return x, nil
	}
	switch {
	case x.kind == vNull && y.kind == vObject:
		return y, nil
	case y.kind == vNull && x.kind == vObject:
		return x, nil
	case x.kind != vObject || y.kind != vObject:
		return top, nil
	}
	name, err := a.mergeRef(x.name, y.name)
	if err != nil {
		return top, err
	}
	return object(name), nil
}

func (a *analysis) mergeRef(x, y string) (string, error) {
	if x == y {
		return x, nil
	}
	if !a.frames || a.merge == nil {
		return objectClass, nil
	}
	dx := len(x) - len(strings.TrimLeft(x, "["))
	dy := len(y) - len(strings.TrimLeft(y, "["))
	if dx == 0 && dy == 0 {
		return a.merge(x, y)
	}
	ex, ey := x[dx:], y[dy:]
	if dx != dy || ex[0] != 'L' || ey[0] != 'L' {
		return objectClass, nil
	}
	e, err := a.mergeRef(ex[1:len(ex)-1], ey[1:len(ey)-1])
	if err != nil {
		return "", err
	}
	return strings.Repeat("[", dx) + "L" + e + ";", nil
}
