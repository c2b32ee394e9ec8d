package callgraph

import (
	"github.com/zboralski/lattice"

	"bcdiff/internal/classfile"
	"bcdiff/internal/disasm"
)

// FuncInfo holds the data needed to build call graph and CFG for one method.
type FuncInfo struct {
	Name      string
	CFG       disasm.FuncCFG
	CallEdges []disasm.CallEdge
}

// Methods builds a FuncInfo for every method of c that has code.
func Methods(c *classfile.Class) []FuncInfo {
	var funcs []FuncInfo
	for _, m := range c.Methods {
		if len(m.Insns) == 0 {
			continue
		}
		name := disasm.MethodName(c.Name, m.Name, m.Desc)
		cfg := disasm.BuildCFG(name, m)
		funcs = append(funcs, FuncInfo{Name: name, CFG: cfg, CallEdges: disasm.CallEdges(&cfg)})
	}
	return funcs
}

// BuildCallGraph constructs a lattice.Graph from method call sites.
// Each method becomes a node. Each call edge becomes an edge; a dynamic
// call site with no implementation handle links to its bootstrap method.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			callee := e.TargetName
			if callee == "" {
				callee = e.Via
			}
			if callee == "" {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: callee,
			})
		}
	}
	g.Dedup()
	return g
}
