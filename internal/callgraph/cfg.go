package callgraph

import (
	"github.com/zboralski/lattice"

	"bcdiff/internal/disasm"
)

// BuildCFG constructs a lattice.CFGGraph from method CFGs.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		cg.Funcs = append(cg.Funcs, convertFuncCFG(&f.CFG, f.CallEdges))
	}
	return cg
}

// BuildFuncCFG builds a single-method lattice.FuncCFG.
// Returns the FuncCFG and the number of basic blocks (for filtering trivial methods).
func BuildFuncCFG(f FuncInfo) (*lattice.FuncCFG, int) {
	return convertFuncCFG(&f.CFG, f.CallEdges), len(f.CFG.Blocks)
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG.
// Call edges are placed in the block that contains their instruction.
func convertFuncCFG(dcfg *disasm.FuncCFG, edges []disasm.CallEdge) *lattice.FuncCFG {
	edgeByIdx := make(map[int]disasm.CallEdge, len(edges))
	for _, e := range edges {
		edgeByIdx[e.Index] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}

		// Convert successors.
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}

		// Populate calls from edges that fall within this block's instruction range.
		for idx := db.Start; idx < db.End; idx++ {
			if e, ok := edgeByIdx[idx]; ok {
				callee := e.TargetName
				if callee == "" {
					callee = e.Via
				}
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: callee,
				})
			}
		}

		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
