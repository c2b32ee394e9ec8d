package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// constPool accumulates constant pool entries and bootstrap methods while a
// class is written. Equal constants share one index.
type constPool struct {
	buf   []byte
	count int // next free index
	index map[string]int

	bsmBuf   []byte
	bsmCount int
	bsmIndex map[string]int
}

func newConstPool() *constPool {
	return &constPool{
		count:    1,
		index:    map[string]int{},
		bsmIndex: map[string]int{},
	}
}

func (cp *constPool) add(key string, slots int, encode func(b []byte) []byte) int {
	if i, ok := cp.index[key]; ok {
		return i
	}
	i := cp.count
	cp.buf = encode(cp.buf)
	cp.count += slots
	cp.index[key] = i
	return i
}

func put2(b []byte, v int) []byte { return binary.BigEndian.AppendUint16(b, uint16(v)) }
func put4(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

func (cp *constPool) utf8(s string) int {
	return cp.add("U"+s, 1, func(b []byte) []byte {
		enc := encodeMUTF8(s)
		b = append(b, tagUtf8)
		b = put2(b, len(enc))
		return append(b, enc...)
	})
}

func (cp *constPool) ref(tag byte, prefix string, arg string) int {
	v := cp.utf8(arg)
	return cp.add(prefix+arg, 1, func(b []byte) []byte {
		return put2(append(b, tag), v)
	})
}

func (cp *constPool) class(name string) int { return cp.ref(tagClass, "C", name) }
func (cp *constPool) str(s string) int { return cp.ref(tagString, "S", s) }
func (cp *constPool) methodType(d string) int { return cp.ref(tagMethodType, "T", d) }

func (cp *constPool) integer(v int32) int {
	return cp.add(fmt.Sprintf("I%d", v), 1, func(b []byte) []byte {
		return put4(append(b, tagInteger), uint32(v))
	})
}

func (cp *constPool) float(v float32) int {
	bits := math.Float32bits(v)
	return cp.add(fmt.Sprintf("F%x", bits), 1, func(b []byte) []byte {
		return put4(append(b, tagFloat), bits)
	})
}

func (cp *constPool) long(v int64) int {
	return cp.add(fmt.Sprintf("J%d", v), 2, func(b []byte) []byte {
		return binary.BigEndian.AppendUint64(append(b, tagLong), uint64(v))
	})
}

func (cp *constPool) double(v float64) int {
	bits := math.Float64bits(v)
	return cp.add(fmt.Sprintf("D%x", bits), 2, func(b []byte) []byte {
		return binary.BigEndian.AppendUint64(append(b, tagDouble), bits)
	})
}

func (cp *constPool) nameAndType(name, desc string) int {
	n, d := cp.utf8(name), cp.utf8(desc)
	return cp.add("N"+name+" "+desc, 1, func(b []byte) []byte {
		return put2(put2(append(b, tagNameAndType), n), d)
	})
}

func (cp *constPool) member(tag byte, owner, name, desc string) int {
	c, nt := cp.class(owner), cp.nameAndType(name, desc)
	key := fmt.Sprintf("M%d %s.%s %s", tag, owner, name, desc)
	return cp.add(key, 1, func(b []byte) []byte {
		return put2(put2(append(b, tag), c), nt)
	})
}

func (cp *constPool) field(owner, name, desc string) int {
	return cp.member(tagFieldref, owner, name, desc)
}

func (cp *constPool) method(owner, name, desc string, itf bool) int {
	if itf {
		return cp.member(tagInterfaceMethodref, owner, name, desc)
	}
	return cp.member(tagMethodref, owner, name, desc)
}

func (cp *constPool) handle(h Handle) (int, error) {
	if h.Kind < H_GETFIELD || h.Kind > H_INVOKEINTERFACE {
		return 0, fmt.Errorf("classfile: invalid handle kind %d", h.Kind)
	}
	var ref int
	if IsFieldHandle(h.Kind) {
		ref = cp.field(h.Owner, h.Name, h.Desc)
	} else {
		ref = cp.method(h.Owner, h.Name, h.Desc, h.Itf || h.Kind == H_INVOKEINTERFACE)
	}
	key := fmt.Sprintf("H%d %d", h.Kind, ref)
	return cp.add(key, 1, func(b []byte) []byte {
		b = append(b, tagMethodHandle, byte(h.Kind))
		return put2(b, ref)
	}), nil
}

// constant registers a loadable constant and reports whether it is a
// two-slot value.
func (cp *constPool) constant(v any) (idx int, wide bool, err error) {
	switch v := v.(type) {
	case int32:
		return cp.integer(v), false, nil
	case float32:
		return cp.float(v), false, nil
	case int64:
		return cp.long(v), true, nil
	case float64:
		return cp.double(v), true, nil
	case string:
		return cp.str(v), false, nil
	case Type:
		if v.IsMethod() {
			return cp.methodType(v.Desc), false, nil
		}
		return cp.class(v.InternalName()), false, nil
	case Handle:
		i, err := cp.handle(v)
		return i, false, err
	}
	return 0, false, fmt.Errorf("classfile: unsupported constant %T", v)
}

func (cp *constPool) invokeDynamic(in *InvokeDynamicInsn) (int, error) {
	bsm, err := cp.handle(in.Bsm)
	if err != nil {
		return 0, err
	}
	args := make([]int, len(in.BsmArgs))
	var key strings.Builder
	fmt.Fprintf(&key, "%d", bsm)
	for i, a := range in.BsmArgs {
		if args[i], _, err = cp.constant(a); err != nil {
			return 0, err
		}
		fmt.Fprintf(&key, ",%d", args[i])
	}
	bi, ok := cp.bsmIndex[key.String()]
	if !ok {
		bi = cp.bsmCount
		cp.bsmCount++
		cp.bsmIndex[key.String()] = bi
		cp.bsmBuf = put2(cp.bsmBuf, bsm)
		cp.bsmBuf = put2(cp.bsmBuf, len(args))
		for _, a := range args {
			cp.bsmBuf = put2(cp.bsmBuf, a)
		}
	}
	nt := cp.nameAndType(in.Name, in.Desc)
	return cp.add(fmt.Sprintf("Y%d %d", bi, nt), 1, func(b []byte) []byte {
		return put2(put2(append(b, tagInvokeDynamic), bi), nt)
	}), nil
}
