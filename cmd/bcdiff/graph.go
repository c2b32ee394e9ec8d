package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zboralski/lattice"
	latticerender "github.com/zboralski/lattice/render"

	"bcdiff/internal/callgraph"
	"bcdiff/internal/classfile"
	"bcdiff/internal/disasm"
	"bcdiff/internal/output"
	"bcdiff/internal/render"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	in := fs.String("in", "", "archive or class file")
	outDir := fs.String("out", "", "output directory")
	prefix := fs.String("class", "", "only classes whose name starts with this prefix")
	title := fs.String("title", "", "graph title (default: input file name)")
	maxNodes := fs.Int("max-nodes", 0, "max classes in the class graph (0 = all)")
	minBlocks := fs.Int("min-blocks", 2, "skip per-method CFGs with fewer blocks")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *outDir == "" {
		return fmt.Errorf("--in and --out are required")
	}
	if *title == "" {
		*title = filepath.Base(*in)
	}

	inputs, err := readClassInputs(*in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	var all []callgraph.FuncInfo
	edges := make(map[string][]disasm.CallEdge)
	cfgCount := 0
	for _, ci := range inputs {
		c, err := classfile.Parse(ci.data, classfile.ReadOptions{SkipDebug: true})
		if err != nil {
			return fmt.Errorf("%s: %w", ci.entry, err)
		}
		if !strings.HasPrefix(c.Name, *prefix) {
			continue
		}

		for _, f := range callgraph.Methods(c) {
			all = append(all, f)
			edges[f.Name] = f.CallEdges

			lcfg, nblocks := callgraph.BuildFuncCFG(f)
			if nblocks < *minBlocks {
				continue
			}
			name := output.FileName(f.Name)
			g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}
			if err := output.WriteDOT(*outDir, "cfg", name, latticerender.DOTCFG(g, f.Name)); err != nil {
				return err
			}
			if err := output.WriteDOT(*outDir, "blocks", name, render.CFGDOT(f.CFG, render.NASA)); err != nil {
				return err
			}
			cfgCount++
		}
	}

	cg := callgraph.BuildCallGraph(all)
	if err := output.WriteDOT(*outDir, "", "callgraph", latticerender.DOT(cg, *title)); err != nil {
		return err
	}
	classDOT := render.ClassgraphDOT(edges, *title+" (class level)", render.NASA, *maxNodes)
	if err := output.WriteDOT(*outDir, "", "classgraph", classDOT); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "graph: %d methods, %d CFGs -> %s\n", len(all), cfgCount, *outDir)
	return nil
}
