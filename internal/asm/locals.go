package asm

import (
	"fmt"
	"strconv"
)

// locals maps symbolic local variable names to slots for one method.
// A name that is a decimal number addresses that slot directly.
type locals struct {
	slots map[string]int
	taken map[int]bool
	size  int
}

func newLocals(static bool) *locals {
	l := &locals{slots: map[string]int{}, taken: map[int]bool{}}
	if !static {
		l.slots["this"] = 0
		l.taken[0] = true
		l.size = 1
	}
	return l
}

func slotNumber(name string) (int, bool) {
	if name == "" || name[0] < '0' || name[0] > '9' {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	if err != nil || n > 0xFFFF {
		return 0, false
	}
	return n, true
}

func width(wide bool) int {
	if wide {
		return 2
	}
	return 1
}

func (l *locals) claim(slot int, wide bool) {
	for i := slot; i < slot+width(wide); i++ {
		l.taken[i] = true
	}
	l.size = max(l.size, slot+width(wide))
}

// param assigns the next parameter slot. A numeric name pins the slot, and
// pinning onto a slot an earlier parameter holds is an error.
func (l *locals) param(name string, wide bool) (int, error) {
	if _, dup := l.slots[name]; dup {
		return 0, fmt.Errorf("duplicate parameter %q", name)
	}
	slot := l.size
	if n, ok := slotNumber(name); ok {
		slot = n
		for i := n; i < n+width(wide); i++ {
			if l.taken[i] {
				return 0, fmt.Errorf("parameter %q collides with slot %d", name, i)
			}
		}
	}
	l.slots[name] = slot
	l.claim(slot, wide)
	return slot, nil
}

// resolve returns the slot for name, allocating one the first time a
// symbolic name is seen.
func (l *locals) resolve(name string, wide bool) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("missing local variable")
	}
	if slot, ok := l.slots[name]; ok {
		if wide {
			l.claim(slot, true)
		}
		return slot, nil
	}
	slot := l.size
	if n, ok := slotNumber(name); ok {
		slot = n
	} else if name[0] >= '0' && name[0] <= '9' {
		return 0, fmt.Errorf("bad local slot %q", name)
	}
	l.slots[name] = slot
	l.claim(slot, wide)
	return slot, nil
}
