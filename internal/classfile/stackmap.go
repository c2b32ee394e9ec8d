package classfile

import "slices"

// framePoints returns the real instruction indexes that need a stack map
// frame: branch and switch targets, live handlers, and anything following an
// unconditional transfer.
func (a *analysis) framePoints() []int {
	need := map[int]bool{}
	n := len(a.insns)
	for k := 0; k < n; k++ {
		if a.in[k] == nil {
			continue
		}
		insn := a.insns[k]
		switch in := insn.(type) {
		case *JumpInsn:
			need[a.target[in.Target]] = true
		case *TableSwitchInsn:
			need[a.target[in.Default]] = true
			for _, l := range in.Labels {
				need[a.target[l]] = true
			}
		case *LookupSwitchInsn:
			need[a.target[in.Default]] = true
			for _, l := range in.Labels {
				need[a.target[l]] = true
			}
		}
		for _, tc := range a.covering(k) {
			need[a.target[tc.Handler]] = true
		}
		if unconditional(insn) && k+1 < n {
			need[k+1] = true
		}
	}
	var out []int
	for k := range need {
		if k < n {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// compact drops the placeholder slot after each long or double and trailing
// tops from locals.
func compact(ts []vtype, trimTop bool) []vtype {
	var out []vtype
	last := 0
	for i := 0; i < len(ts); i++ {
		out = append(out, ts[i])
		if ts[i] != top {
			last = len(out)
		}
		if ts[i].wide() {
			i++
		}
	}
	if trimTop {
		out = out[:last]
	}
	return out
}

func (w *classWriter) vtypeBytes(b []byte, t vtype) []byte {
	switch t.kind {
	case vObject:
		return put2(append(b, 7), w.cp.class(t.name))
	case vUninit:
		return put2(append(b, 8), t.off)
	}
	return append(b, byte(t.kind))
}

// stackMapTable encodes frames at every frame point. Dead code starts get the
// frame of an instruction that only throws.
func (w *classWriter) stackMapTable(a *analysis, dead []span) ([]byte, int) {
	deadAt := map[int]bool{}
	for _, d := range dead {
		deadAt[d.start] = true
	}

	prevLocals := compact(a.start.locals, true)
	prevOff := -1

	var b []byte
	count := 0
	for _, k := range a.framePoints() {
		off := a.pcs[k]
		var locals, stack []vtype
		if f := a.in[k]; f != nil {
			locals = compact(f.locals, true)
			stack = compact(f.stack, false)
		} else if deadAt[off] {
			stack = []vtype{object(throwableClass)}
		} else {
			continue
		}
		delta := off - prevOff - 1
		b = w.frameBytes(b, delta, prevLocals, locals, stack)
		prevLocals, prevOff = locals, off
		count++
	}
	return b, count
}

func (w *classWriter) frameBytes(b []byte, delta int, prev, locals, stack []vtype) []byte {
	sameLocals := slices.Equal(prev, locals)
	switch {
	case sameLocals && len(stack) == 0:
		if delta < 64 {
			return append(b, byte(delta))
		}
		return put2(append(b, 251), delta)
	case sameLocals && len(stack) == 1:
		if delta < 64 {
			b = append(b, byte(64+delta))
		} else {
			b = put2(append(b, 247), delta)
		}
		return w.vtypeBytes(b, stack[0])
	case len(stack) == 0 && len(locals) < len(prev) && len(prev)-len(locals) <= 3 &&
		slices.Equal(prev[:len(locals)], locals):
		return put2(append(b, byte(251-(len(prev)-len(locals)))), delta)
	case len(stack) == 0 && len(locals) > len(prev) && len(locals)-len(prev) <= 3 &&
		slices.Equal(locals[:len(prev)], prev):
		b = put2(append(b, byte(251+len(locals)-len(prev))), delta)
		for _, t := range locals[len(prev):] {
			b = w.vtypeBytes(b, t)
		}
		return b
	}
	b = put2(append(b, 255), delta)
	b = put2(b, len(locals))
	for _, t := range locals {
		b = w.vtypeBytes(b, t)
	}
	b = put2(b, len(stack))
	for _, t := range stack {
		b = w.vtypeBytes(b, t)
	}
	return b
}
