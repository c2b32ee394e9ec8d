package disasm

import (
	"strings"

	"bcdiff/internal/classfile"
)

// CallEdge represents a call site extracted from a method body.
type CallEdge struct {
	Index      int    `json:"index"` // position in FuncCFG.Insts
	Kind       string `json:"kind"`  // "invokevirtual", ..., "indy"
	TargetName string `json:"target_name,omitempty"`
	Via        string `json:"via,omitempty"` // bootstrap method for dynamic call sites
}

// MethodName is the node name of a method in call graphs.
func MethodName(owner, name, desc string) string {
	return owner + "." + name + desc
}

// CallEdges extracts the call sites of a CFG's instructions. A dynamic call
// site resolves to its implementation method when the bootstrap arguments
// carry a method handle, as lambda and method reference sites do.
func CallEdges(cfg *FuncCFG) []CallEdge {
	var edges []CallEdge
	for i, in := range cfg.Insts {
		switch in := in.(type) {
		case *classfile.MethodInsn:
			edges = append(edges, CallEdge{
				Index:      i,
				Kind:       strings.ToLower(classfile.OpName(in.Opcode)),
				TargetName: MethodName(in.Owner, in.Name, in.Desc),
			})
		case *classfile.InvokeDynamicInsn:
			e := CallEdge{
				Index: i,
				Kind:  "indy",
				Via:   MethodName(in.Bsm.Owner, in.Bsm.Name, in.Bsm.Desc),
			}
			for _, a := range in.BsmArgs {
				if h, ok := a.(classfile.Handle); ok && !classfile.IsFieldHandle(h.Kind) {
					e.TargetName = MethodName(h.Owner, h.Name, h.Desc)
					break
				}
			}
			edges = append(edges, e)
		}
	}
	return edges
}
