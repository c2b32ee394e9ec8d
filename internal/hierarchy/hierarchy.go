// Package hierarchy answers type hierarchy questions for frame computation
// without loading any code: the nearest common superclass of two classes
// is derived from class headers alone.
package hierarchy

import (
	"errors"
	"fmt"

	"bcdiff/internal/classfile"
)

// Object is the root of the class hierarchy.
const Object = "java/lang/Object"

// ErrUnresolved is returned by a Provider that does not know a type.
var ErrUnresolved = errors.New("hierarchy: type not resolved")

// TypeInfo is the hierarchy view of one type.
type TypeInfo struct {
	Name       string   `cbor:"1,keyasint"`
	Super      string   `cbor:"2,keyasint,omitempty"` // "" only for java/lang/Object
	Interface  bool     `cbor:"3,keyasint,omitempty"`
	Interfaces []string `cbor:"4,keyasint,omitempty"`
}

// Info returns the hierarchy view of a class header.
func Info(c *classfile.Class) TypeInfo {
	return TypeInfo{
		Name:       c.Name,
		Super:      c.SuperName,
		Interface:  c.Access&classfile.AccInterface != 0,
		Interfaces: c.Interfaces,
	}
}

// Provider looks up type hierarchy views.
type Provider interface {
	Lookup(name string) (TypeInfo, error)
}

// MapProvider serves the types being processed in this run. It must be
// fully populated before it is shared.
type MapProvider map[string]TypeInfo

// NewMapProvider indexes class headers by name.
func NewMapProvider(classes ...*classfile.Class) MapProvider {
	m := make(MapProvider, len(classes))
	for _, c := range classes {
		m.Add(c)
	}
	return m
}

// Add records c, replacing any earlier view of the same name.
func (m MapProvider) Add(c *classfile.Class) { m[c.Name] = Info(c) }

func (m MapProvider) Lookup(name string) (TypeInfo, error) {
	if ti, ok := m[name]; ok {
		return ti, nil
	}
	return TypeInfo{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
}

type chain []Provider

// Chain tries each provider in order and returns the first answer. Only
// ErrUnresolved moves on to the next provider; other errors stop the search.
func Chain(providers ...Provider) Provider {
	var c chain
	for _, p := range providers {
		if p != nil {
			c = append(c, p)
		}
	}
	return c
}

func (c chain) Lookup(name string) (TypeInfo, error) {
	for _, p := range c {
		ti, err := p.Lookup(name)
		if err == nil {
			return ti, nil
		}
		if !errors.Is(err, ErrUnresolved) {
			return TypeInfo{}, err
		}
	}
	return TypeInfo{}, fmt.Errorf("%w: %s", ErrUnresolved, name)
}
