package disasm

import (
	"sort"

	"bcdiff/internal/classfile"
)

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Insts (inclusive)
	End     int    // index into FuncCFG.Insts (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with a return, a throw or RET
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T"/"F" = taken/fallthrough, "case k", "default", "catch T"
}

// FuncCFG is a per-method control flow graph. Insts holds the real
// instructions of the method; labels and line numbers are dropped. Text
// holds the IR form of each instruction.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []classfile.Insn
	Text   []string
}

// BuildCFG constructs a control flow graph from a method's instruction list.
// The algorithm:
//  1. Find block leaders: index 0, branch targets, handler starts,
//     instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction, plus
//     exception edges from every block inside a protected range.
func BuildCFG(name string, m *classfile.Method) FuncCFG {
	var insts []classfile.Insn
	labelIdx := map[*classfile.Label]int{}
	for _, in := range m.Insns {
		switch in := in.(type) {
		case *classfile.Label:
			labelIdx[in] = len(insts)
		case *classfile.LineNumber:
		default:
			insts = append(insts, in)
		}
	}
	if len(insts) == 0 {
		return FuncCFG{Name: name}
	}

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	mark := func(l *classfile.Label) {
		if idx, ok := labelIdx[l]; ok && idx < len(insts) {
			leaders[idx] = true
		}
	}
	for i, in := range insts {
		bi := DecodeBranch(in)
		if bi == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, l := range bi.Targets {
			mark(l)
		}
	}
	for _, tc := range m.TryCatch {
		mark(tc.Handler)
		mark(tc.Start)
		mark(tc.End)
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{ID: i, Start: start, End: end, IsEntry: start == 0}
		leaderToBlock[start] = i
	}
	blockOf := func(l *classfile.Label) (int, bool) {
		idx, ok := labelIdx[l]
		if !ok {
			return 0, false
		}
		bid, ok := leaderToBlock[idx]
		return bid, ok
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		bi := DecodeBranch(insts[blk.End-1])
		next, hasNext := leaderToBlock[blk.End]

		switch {
		case bi == nil:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		case bi.IsRet:
			blk.IsTerm = true
		default:
			for j, l := range bi.Targets {
				if bid, ok := blockOf(l); ok {
					blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: bi.Keys[j]})
				}
			}
			if bi.Cond && hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		}

		for _, tc := range m.TryCatch {
			start, end := labelIdx[tc.Start], labelIdx[tc.End]
			if blk.Start < start || blk.Start >= end {
				continue
			}
			if bid, ok := blockOf(tc.Handler); ok {
				cond := "catch *"
				if tc.Type != "" {
					cond = "catch " + tc.Type
				}
				blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: cond})
			}
		}
	}

	t := newMethodText(m)
	text := make([]string, len(insts))
	for i, in := range insts {
		s, err := t.insn(in)
		if err != nil {
			s = classfile.OpName(in.Op()) + " ?"
		}
		text[i] = s
	}
	return FuncCFG{Name: name, Blocks: blocks, Insts: insts, Text: text}
}
