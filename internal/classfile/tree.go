// Package classfile reads and writes JVM class files as an editable
// instruction tree.
//
// The tree mirrors the structure a disassembler needs: symbolic labels instead
// of byte offsets, constants inlined into instructions, and no constant pool.
// Write rebuilds the constant pool, lays out code, and computes max stack,
// max locals and stack map frames.
package classfile

import "fmt"

// Class is one parsed class file.
type Class struct {
	Version     uint32 // minor<<16 | major
	Access      int
	Name        string
	Signature   *string
	SuperName   string // "" for java/lang/Object and module-info
	Interfaces  []string
	SourceFile  *string
	SourceDebug *string

	// EnclosingMethod attribute; OuterClass is "" when absent.
	OuterClass      string
	OuterMethod     string
	OuterMethodDesc string

	NestHost     string
	NestMembers  []string
	InnerClasses []InnerClass

	Fields  []*Field
	Methods []*Method
}

// InnerClass is one InnerClasses attribute entry. OuterName and InnerName
// are "" when the class file stores index 0.
type InnerClass struct {
	Name      string
	OuterName string
	InnerName string
	Access    int
}

// Field is a field declaration. Value is the ConstantValue attribute:
// int32, int64, float32, float64, string, or nil.
type Field struct {
	Access    int
	Name      string
	Desc      string
	Signature *string
	Value     any
}

// Method is a method declaration with its instruction list.
type Method struct {
	Access     int
	Name       string
	Desc       string
	Signature  *string
	Exceptions []string

	Insns     []Insn
	TryCatch  []TryCatch
	LocalVars []LocalVar

	// Filled in by Parse and by Write.
	MaxStack  int
	MaxLocals int
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Access&AccStatic != 0 }

// HasCode reports whether the method carries a Code attribute.
func (m *Method) HasCode() bool { return m.Access&(AccAbstract|AccNative) == 0 }

// TryCatch is one exception table entry. Type is "" for a catch-all handler.
type TryCatch struct {
	Start   *Label
	End     *Label
	Handler *Label
	Type    string
}

// LocalVar is one LocalVariableTable entry.
type LocalVar struct {
	Name  string
	Desc  string
	Start *Label
	End   *Label
	Index int
}

// Insn is one node of a method's instruction list. Pseudo nodes (labels and
// line numbers) report an opcode of -1.
type Insn interface {
	Op() int
}

// Label marks a position in the instruction list. Labels are compared by
// identity.
type Label struct {
	offset int // byte offset, valid during Write
}

func (*Label) Op() int { return -1 }

// LineNumber associates a source line with the position of Start.
type LineNumber struct {
	Line  int
	Start *Label
}

func (*LineNumber) Op() int { return -1 }

// SimpleInsn is an instruction without operands.
type SimpleInsn struct{ Opcode int }

func (i *SimpleInsn) Op() int { return i.Opcode }

// IntInsn is BIPUSH, SIPUSH or NEWARRAY (Operand is the T_ type code).
type IntInsn struct {
	Opcode  int
	Operand int
}

func (i *IntInsn) Op() int { return i.Opcode }

// VarInsn loads, stores, or RETs through a local variable slot.
type VarInsn struct {
	Opcode int
	Var    int
}

func (i *VarInsn) Op() int { return i.Opcode }

// TypeInsn is NEW, ANEWARRAY, CHECKCAST or INSTANCEOF. Desc is an internal
// name or an array descriptor.
type TypeInsn struct {
	Opcode int
	Desc   string
}

func (i *TypeInsn) Op() int { return i.Opcode }

// FieldInsn accesses a field.
type FieldInsn struct {
	Opcode int
	Owner  string
	Name   string
	Desc   string
}

func (i *FieldInsn) Op() int { return i.Opcode }

// MethodInsn invokes a method. Itf is set when the reference is an
// InterfaceMethodref.
type MethodInsn struct {
	Opcode int
	Owner  string
	Name   string
	Desc   string
	Itf    bool
}

func (i *MethodInsn) Op() int { return i.Opcode }

// InvokeDynamicInsn is a dynamic call site.
type InvokeDynamicInsn struct {
	Name    string
	Desc    string
	Bsm     Handle
	BsmArgs []any
}

func (*InvokeDynamicInsn) Op() int { return INVOKEDYNAMIC }

// JumpInsn branches to Target.
type JumpInsn struct {
	Opcode int
	Target *Label
}

func (i *JumpInsn) Op() int { return i.Opcode }

// LdcInsn loads a constant: int32, int64, float32, float64, string, Type or
// Handle.
type LdcInsn struct {
	Value any
}

func (*LdcInsn) Op() int { return LDC }

// IincInsn increments a local variable.
type IincInsn struct {
	Var  int
	Incr int
}

func (*IincInsn) Op() int { return IINC }

// TableSwitchInsn jumps through a dense key range.
type TableSwitchInsn struct {
	Min     int32
	Max     int32
	Default *Label
	Labels  []*Label
}

func (*TableSwitchInsn) Op() int { return TABLESWITCH }

// LookupSwitchInsn jumps through sorted key/label pairs.
type LookupSwitchInsn struct {
	Default *Label
	Keys    []int32
	Labels  []*Label
}

func (*LookupSwitchInsn) Op() int { return LOOKUPSWITCH }

// MultiANewArrayInsn allocates a multi-dimensional array.
type MultiANewArrayInsn struct {
	Desc string
	Dims int
}

func (*MultiANewArrayInsn) Op() int { return MULTIANEWARRAY }

// Type is a class, array or method type constant, identified by its
// descriptor. Class constants use the object descriptor form (Lpkg/Name;).
type Type struct {
	Desc string
}

// ObjectType returns the Type for an internal name or array descriptor.
func ObjectType(internalName string) Type {
	if len(internalName) > 0 && internalName[0] == '[' {
		return Type{Desc: internalName}
	}
	return Type{Desc: "L" + internalName + ";"}
}

// InternalName returns the class-constant form of an object or array type.
func (t Type) InternalName() string {
	if len(t.Desc) > 1 && t.Desc[0] == 'L' {
		return t.Desc[1 : len(t.Desc)-1]
	}
	return t.Desc
}

// IsMethod reports whether t is a method type.
func (t Type) IsMethod() bool { return len(t.Desc) > 0 && t.Desc[0] == '(' }

// Handle is a CONSTANT_MethodHandle.
type Handle struct {
	Kind  int
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

func (h Handle) String() string {
	return fmt.Sprintf("%s %s.%s%s", HandleKindNames[h.Kind], h.Owner, h.Name, h.Desc)
}

// Str returns a pointer to s, for the nullable string fields of the tree.
func Str(s string) *string { return &s }
