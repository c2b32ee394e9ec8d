package disasm

import (
	"strconv"

	"bcdiff/internal/classfile"
)

// Control transfer classification of JVM instructions. These identify
// basic-block terminators and their targets.

// BranchInfo describes a control transfer instruction.
type BranchInfo struct {
	Targets []*classfile.Label // jump or switch targets, default last
	Keys    []string           // successor condition per target
	Cond    bool               // true if execution can fall through
	IsRet   bool               // true if the method exits (return, throw, RET)
}

// DecodeBranch returns the control transfer of in, or nil if in always
// falls through to the next instruction.
func DecodeBranch(in classfile.Insn) *BranchInfo {
	switch in := in.(type) {
	case *classfile.JumpInsn:
		switch in.Opcode {
		case classfile.GOTO:
			return &BranchInfo{Targets: []*classfile.Label{in.Target}, Keys: []string{""}}
		case classfile.JSR:
			// The subroutine returns to the next instruction.
			return &BranchInfo{Targets: []*classfile.Label{in.Target}, Keys: []string{"jsr"}, Cond: true}
		}
		return &BranchInfo{Targets: []*classfile.Label{in.Target}, Keys: []string{"T"}, Cond: true}
	case *classfile.TableSwitchInsn:
		bi := &BranchInfo{}
		for i, l := range in.Labels {
			bi.Targets = append(bi.Targets, l)
			bi.Keys = append(bi.Keys, "case "+strconv.FormatInt(int64(in.Min)+int64(i), 10))
		}
		bi.Targets = append(bi.Targets, in.Default)
		bi.Keys = append(bi.Keys, "default")
		return bi
	case *classfile.LookupSwitchInsn:
		bi := &BranchInfo{}
		for i, l := range in.Labels {
			bi.Targets = append(bi.Targets, l)
			bi.Keys = append(bi.Keys, "case "+strconv.FormatInt(int64(in.Keys[i]), 10))
		}
		bi.Targets = append(bi.Targets, in.Default)
		bi.Keys = append(bi.Keys, "default")
		return bi
	case *classfile.VarInsn:
		if in.Opcode == classfile.RET {
			return &BranchInfo{IsRet: true}
		}
	case *classfile.SimpleInsn:
		if IsExit(in.Opcode) {
			return &BranchInfo{IsRet: true}
		}
	}
	return nil
}

// IsExit reports whether op leaves the method.
func IsExit(op int) bool {
	return op >= classfile.IRETURN && op <= classfile.RETURN || op == classfile.ATHROW
}

// IsBranchTerminator returns true if the instruction ends a basic block.
// Method invocations are not terminators; they return to the next
// instruction.
func IsBranchTerminator(in classfile.Insn) bool {
	return DecodeBranch(in) != nil
}
