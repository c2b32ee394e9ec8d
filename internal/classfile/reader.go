package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrNotClass          = errors.New("classfile: not a class file")
	ErrTruncated         = errors.New("classfile: truncated")
	ErrUnsupported       = errors.New("classfile: unsupported construct")
	ErrBranchOverflow    = errors.New("classfile: branch offset does not fit in 16 bits")
	ErrInconsistentStack = errors.New("classfile: inconsistent stack height at join")
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// IsClassFile reports whether prefix starts with the class file magic.
func IsClassFile(prefix []byte) bool {
	return len(prefix) >= 4 && binary.BigEndian.Uint32(prefix) == Magic
}

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// ReadOptions controls what Parse keeps.
type ReadOptions struct {
	// SkipDebug drops SourceFile, SourceDebugExtension, LineNumberTable and
	// LocalVariableTable.
	SkipDebug bool
}

type cpEntry struct {
	tag byte
	str string
	num uint64 // raw bits of numeric constants
	a   uint16
	b   uint16
}

type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.pos)
		return false
	}
	return true
}

func (r *reader) u1() int {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return int(v)
}

func (r *reader) u2() int {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return int(v)
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

type rawAttr struct {
	name string
	data []byte
}

type rawMember struct {
	access int
	name   string
	desc   string
	attrs  []rawAttr
}

type bootstrap struct {
	handle int
	args   []int
}

type parser struct {
	cp   []cpEntry
	bsms []bootstrap
	opts ReadOptions
}

// Parse decodes a class file into a tree. Stack map frames are always
// discarded; Write recomputes them.
func Parse(data []byte, opts ReadOptions) (*Class, error) {
	c, p, r, err := parseHeader(data, opts)
	if err != nil {
		return nil, err
	}

	fields, err := p.readMembers(r)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	methods, err := p.readMembers(r)
	if err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	classAttrs, err := p.readAttrs(r)
	if err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}

	// BootstrapMethods must be known before any code is decoded.
	for _, a := range classAttrs {
		if a.name == "BootstrapMethods" {
			if err := p.readBootstrapMethods(a.data); err != nil {
				return nil, err
			}
		}
	}
	if err := p.classAttrs(c, classAttrs); err != nil {
		return nil, err
	}

	for _, rm := range fields {
		f, err := p.field(rm)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", rm.name, err)
		}
		c.Fields = append(c.Fields, f)
	}
	for _, rm := range methods {
		m, err := p.method(rm)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", rm.name, rm.desc, err)
		}
		c.Methods = append(c.Methods, m)
	}
	return c, nil
}

// ParseHeader decodes only the version, access flags, name, superclass and
// interfaces of a class file.
func ParseHeader(data []byte) (*Class, error) {
	c, _, _, err := parseHeader(data, ReadOptions{})
	return c, err
}

func parseHeader(data []byte, opts ReadOptions) (*Class, *parser, *reader, error) {
	if !IsClassFile(data) {
		return nil, nil, nil, ErrNotClass
	}
	r := &reader{data: data, pos: 4}
	p := &parser{opts: opts}

	minor := r.u2()
	major := r.u2()
	if err := p.readConstantPool(r); err != nil {
		return nil, nil, nil, err
	}

	c := &Class{Version: uint32(minor)<<16 | uint32(major)}
	c.Access = r.u2()
	var err error
	if c.Name, err = p.className(r.u2()); err != nil {
		return nil, nil, nil, fmt.Errorf("this_class: %w", err)
	}
	if super := r.u2(); super != 0 {
		if c.SuperName, err = p.className(super); err != nil {
			return nil, nil, nil, fmt.Errorf("super_class: %w", err)
		}
	}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		name, err := p.className(r.u2())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("interfaces: %w", err)
		}
		c.Interfaces = append(c.Interfaces, name)
	}
	if r.err != nil {
		return nil, nil, nil, r.err
	}
	return c, p, r, nil
}

func (p *parser) readConstantPool(r *reader) error {
	count := r.u2()
	p.cp = make([]cpEntry, count)
	for i := 1; i < count; i++ {
		e := cpEntry{tag: byte(r.u1())}
		switch e.tag {
		case tagUtf8:
			n := r.u2()
			s, err := decodeMUTF8(r.bytes(n))
			if err != nil {
				return fmt.Errorf("constant %d: %w", i, err)
			}
			e.str = s
		case tagInteger, tagFloat:
			e.num = uint64(r.u4())
		case tagLong, tagDouble:
			hi := uint64(r.u4())
			e.num = hi<<32 | uint64(r.u4())
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = uint16(r.u2())
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType,
			tagDynamic, tagInvokeDynamic:
			e.a = uint16(r.u2())
			e.b = uint16(r.u2())
		case tagMethodHandle:
			e.a = uint16(r.u1())
			e.b = uint16(r.u2())
		default:
			if r.err != nil {
				return r.err
			}
			return fmt.Errorf("classfile: unknown constant pool tag %d at index %d", e.tag, i)
		}
		p.cp[i] = e
		if e.tag == tagLong || e.tag == tagDouble {
			i++
		}
	}
	return r.err
}

func (p *parser) entry(idx int, tags ...byte) (cpEntry, error) {
	if idx <= 0 || idx >= len(p.cp) {
		return cpEntry{}, fmt.Errorf("classfile: constant index %d out of range", idx)
	}
	e := p.cp[idx]
	for _, t := range tags {
		if e.tag == t {
			return e, nil
		}
	}
	return cpEntry{}, fmt.Errorf("classfile: constant %d has tag %d, want %v", idx, e.tag, tags)
}

func (p *parser) utf8(idx int) (string, error) {
	e, err := p.entry(idx, tagUtf8)
	return e.str, err
}

func (p *parser) className(idx int) (string, error) {
	e, err := p.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(int(e.a))
}

func (p *parser) nameAndType(idx int) (name, desc string, err error) {
	e, err := p.entry(idx, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.utf8(int(e.a)); err != nil {
		return "", "", err
	}
	desc, err = p.utf8(int(e.b))
	return name, desc, err
}

// memberRef resolves a Fieldref, Methodref or InterfaceMethodref.
func (p *parser) memberRef(idx int) (owner, name, desc string, itf bool, err error) {
	e, err := p.entry(idx, tagFieldref, tagMethodref, tagInterfaceMethodref)
	if err != nil {
		return "", "", "", false, err
	}
	if owner, err = p.className(int(e.a)); err != nil {
		return "", "", "", false, err
	}
	name, desc, err = p.nameAndType(int(e.b))
	return owner, name, desc, e.tag == tagInterfaceMethodref, err
}

func (p *parser) handle(idx int) (Handle, error) {
	e, err := p.entry(idx, tagMethodHandle)
	if err != nil {
		return Handle{}, err
	}
	owner, name, desc, itf, err := p.memberRef(int(e.b))
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: int(e.a), Owner: owner, Name: name, Desc: desc, Itf: itf}, nil
}

// constant converts a loadable constant into its tree value.
func (p *parser) constant(idx int) (any, error) {
	e, err := p.entry(idx, tagInteger, tagFloat, tagLong, tagDouble, tagString,
		tagClass, tagMethodType, tagMethodHandle, tagDynamic)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case tagInteger:
		return int32(uint32(e.num)), nil
	case tagFloat:
		return math.Float32frombits(uint32(e.num)), nil
	case tagLong:
		return int64(e.num), nil
	case tagDouble:
		return math.Float64frombits(e.num), nil
	case tagString:
		return p.utf8(int(e.a))
	case tagClass:
		name, err := p.utf8(int(e.a))
		if err != nil {
			return nil, err
		}
		return ObjectType(name), nil
	case tagMethodType:
		desc, err := p.utf8(int(e.a))
		if err != nil {
			return nil, err
		}
		return Type{Desc: desc}, nil
	case tagMethodHandle:
		return p.handle(idx)
	}
	return nil, fmt.Errorf("%w: CONSTANT_Dynamic at index %d", ErrUnsupported, idx)
}

func (p *parser) readAttrs(r *reader) ([]rawAttr, error) {
	n := r.u2()
	attrs := make([]rawAttr, 0, n)
	for ; n > 0 && r.err == nil; n-- {
		name, err := p.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		length := int(r.u4())
		attrs = append(attrs, rawAttr{name: name, data: r.bytes(length)})
	}
	return attrs, r.err
}

func (p *parser) readMembers(r *reader) ([]rawMember, error) {
	n := r.u2()
	members := make([]rawMember, 0, n)
	for ; n > 0 && r.err == nil; n-- {
		m := rawMember{access: r.u2()}
		var err error
		if m.name, err = p.utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.desc, err = p.utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.attrs, err = p.readAttrs(r); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, r.err
}

func (p *parser) readBootstrapMethods(data []byte) error {
	r := &reader{data: data}
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		b := bootstrap{handle: r.u2()}
		for argc := r.u2(); argc > 0 && r.err == nil; argc-- {
			b.args = append(b.args, r.u2())
		}
		p.bsms = append(p.bsms, b)
	}
	if r.err != nil {
		return fmt.Errorf("BootstrapMethods: %w", r.err)
	}
	return nil
}

func (p *parser) classAttrs(c *Class, attrs []rawAttr) error {
	for _, a := range attrs {
		r := &reader{data: a.data}
		switch a.name {
		case "Signature":
			s, err := p.utf8(r.u2())
			if err != nil {
				return fmt.Errorf("Signature: %w", err)
			}
			c.Signature = Str(s)
		case "SourceFile":
			if p.opts.SkipDebug {
				continue
			}
			s, err := p.utf8(r.u2())
			if err != nil {
				return fmt.Errorf("SourceFile: %w", err)
			}
			c.SourceFile = Str(s)
		case "SourceDebugExtension":
			if p.opts.SkipDebug {
				continue
			}
			s, err := decodeMUTF8(a.data)
			if err != nil {
				return fmt.Errorf("SourceDebugExtension: %w", err)
			}
			c.SourceDebug = Str(s)
		case "InnerClasses":
			for n := r.u2(); n > 0 && r.err == nil; n-- {
				var ic InnerClass
				var err error
				if ic.Name, err = p.className(r.u2()); err != nil {
					return fmt.Errorf("InnerClasses: %w", err)
				}
				if idx := r.u2(); idx != 0 {
					if ic.OuterName, err = p.className(idx); err != nil {
						return fmt.Errorf("InnerClasses: %w", err)
					}
				}
				if idx := r.u2(); idx != 0 {
					if ic.InnerName, err = p.utf8(idx); err != nil {
						return fmt.Errorf("InnerClasses: %w", err)
					}
				}
				ic.Access = r.u2()
				c.InnerClasses = append(c.InnerClasses, ic)
			}
		case "EnclosingMethod":
			var err error
			if c.OuterClass, err = p.className(r.u2()); err != nil {
				return fmt.Errorf("EnclosingMethod: %w", err)
			}
			if idx := r.u2(); idx != 0 {
				if c.OuterMethod, c.OuterMethodDesc, err = p.nameAndType(idx); err != nil {
					return fmt.Errorf("EnclosingMethod: %w", err)
				}
			}
		case "NestHost":
			var err error
			if c.NestHost, err = p.className(r.u2()); err != nil {
				return fmt.Errorf("NestHost: %w", err)
			}
		case "NestMembers":
			for n := r.u2(); n > 0 && r.err == nil; n-- {
				name, err := p.className(r.u2())
				if err != nil {
					return fmt.Errorf("NestMembers: %w", err)
				}
				c.NestMembers = append(c.NestMembers, name)
			}
		}
		if r.err != nil {
			return fmt.Errorf("%s: %w", a.name, r.err)
		}
	}
	return nil
}

func (p *parser) field(rm rawMember) (*Field, error) {
	f := &Field{Access: rm.access, Name: rm.name, Desc: rm.desc}
	for _, a := range rm.attrs {
		r := &reader{data: a.data}
		switch a.name {
		case "ConstantValue":
			v, err := p.constant(r.u2())
			if err != nil {
				return nil, fmt.Errorf("ConstantValue: %w", err)
			}
			f.Value = v
		case "Signature":
			s, err := p.utf8(r.u2())
			if err != nil {
				return nil, fmt.Errorf("Signature: %w", err)
			}
			f.Signature = Str(s)
		}
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, r.err)
		}
	}
	return f, nil
}

func (p *parser) method(rm rawMember) (*Method, error) {
	m := &Method{Access: rm.access, Name: rm.name, Desc: rm.desc}
	for _, a := range rm.attrs {
		r := &reader{data: a.data}
		switch a.name {
		case "Signature":
			s, err := p.utf8(r.u2())
			if err != nil {
				return nil, fmt.Errorf("Signature: %w", err)
			}
			m.Signature = Str(s)
		case "Exceptions":
			for n := r.u2(); n > 0 && r.err == nil; n-- {
				name, err := p.className(r.u2())
				if err != nil {
					return nil, fmt.Errorf("Exceptions: %w", err)
				}
				m.Exceptions = append(m.Exceptions, name)
			}
		case "Code":
			if err := p.code(m, r); err != nil {
				return nil, fmt.Errorf("Code: %w", err)
			}
		}
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, r.err)
		}
	}
	return m, nil
}
