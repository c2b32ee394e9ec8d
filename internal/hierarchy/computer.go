package hierarchy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

// log is resolved on use so that it picks up the backend configured by the
// command after package initialization.
func log() commonlog.Logger { return commonlog.GetLogger("bcdiff.hierarchy") }

// maxDepth bounds superclass and interface walks so that a malformed
// hierarchy with a cycle fails instead of looping.
const maxDepth = 512

// Computer answers common superclass queries for the class writer. It is
// safe for concurrent use once its Provider is fully populated.
type Computer struct {
	Provider Provider

	// Strict makes an unresolvable type an error. Otherwise the type is
	// logged and treated as a direct subclass of java/lang/Object, which can
	// widen a computed frame type but never narrows it.
	Strict bool

	mu    sync.Mutex
	views map[string]TypeInfo
}

// NewComputer returns a Computer over p.
func NewComputer(p Provider, strict bool) *Computer {
	return &Computer{Provider: p, Strict: strict}
}

func (c *Computer) view(name string) (TypeInfo, error) {
	if name == Object {
		return TypeInfo{Name: Object}, nil
	}
	c.mu.Lock()
	ti, ok := c.views[name]
	c.mu.Unlock()
	if ok {
		return ti, nil
	}

	var err error
	if c.Provider == nil {
		err = fmt.Errorf("%w: %s", ErrUnresolved, name)
	} else {
		ti, err = c.Provider.Lookup(name)
	}
	if err != nil {
		if c.Strict || !errors.Is(err, ErrUnresolved) {
			return TypeInfo{}, err
		}
		log().Warningf("cannot resolve %s; assuming it extends %s", name, Object)
		ti = TypeInfo{Name: name}
	}
	if ti.Super == "" {
		ti.Super = Object
	}

	c.mu.Lock()
	if c.views == nil {
		c.views = map[string]TypeInfo{}
	}
	c.views[name] = ti
	c.mu.Unlock()
	return ti, nil
}

// CommonAncestor returns the nearest common superclass of two internal
// class names. If either is java/lang/Object, or the two are unrelated and
// either is an interface, the answer is java/lang/Object. It has the
// signature of classfile.MergeFunc.
func (c *Computer) CommonAncestor(a, b string) (string, error) {
	if a == b {
		return a, nil
	}
	if a == Object || b == Object {
		return Object, nil
	}
	ta, err := c.view(a)
	if err != nil {
		return "", err
	}
	tb, err := c.view(b)
	if err != nil {
		return "", err
	}

	if ok, err := c.assignable(ta, tb); err != nil || ok {
		return a, err
	}
	if ok, err := c.assignable(tb, ta); err != nil || ok {
		return b, err
	}
	if ta.Interface || tb.Interface {
		return Object, nil
	}

	// Walk b's superclasses until one of them is also a superclass of a.
	cur := tb
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return "", fmt.Errorf("hierarchy: superclass chain of %s is too deep", b)
		}
		if cur.Super == "" || cur.Name == Object {
			return Object, nil
		}
		if cur, err = c.view(cur.Super); err != nil {
			return "", err
		}
		ok, err := c.isSubclass(ta, cur.Name)
		if err != nil {
			return "", err
		}
		if ok {
			return cur.Name, nil
		}
	}
}

// assignable reports whether a value of type from can be stored in a
// variable of type to.
func (c *Computer) assignable(to, from TypeInfo) (bool, error) {
	if to.Interface {
		return c.implements(from, to.Name, 0)
	}
	return c.isSubclass(from, to.Name)
}

// isSubclass walks t's superclass chain looking for name.
func (c *Computer) isSubclass(t TypeInfo, name string) (bool, error) {
	for depth := 0; ; depth++ {
		if t.Name == name {
			return true, nil
		}
		if t.Name == Object || depth > maxDepth {
			return false, nil
		}
		var err error
		if t, err = c.view(t.Super); err != nil {
			return false, err
		}
	}
}

// implements reports whether t or any of its superclasses implements iface,
// directly or through superinterfaces.
func (c *Computer) implements(t TypeInfo, iface string, depth int) (bool, error) {
	if depth > maxDepth {
		return false, fmt.Errorf("hierarchy: interface graph of %s is too deep", t.Name)
	}
	for cur := t; ; {
		if cur.Name == iface {
			return true, nil
		}
		for _, name := range cur.Interfaces {
			it, err := c.view(name)
			if err != nil {
				return false, err
			}
			ok, err := c.implements(it, iface, depth+1)
			if err != nil || ok {
				return ok, err
			}
		}
		if cur.Interface || cur.Name == Object {
			return false, nil
		}
		var err error
		if cur, err = c.view(cur.Super); err != nil {
			return false, err
		}
		depth++
		if depth > maxDepth {
			return false, fmt.Errorf("hierarchy: superclass chain of %s is too deep", t.Name)
		}
	}
}
