package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"bcdiff/internal/disasm"
)

// ClassgraphDOT renders a class-level callgraph where each owner class is one node
// and edges represent aggregated inter-class calls. edges maps a caller
// method name (disasm.MethodName) to its call sites. Classes that only
// appear as call targets are drawn as external nodes. maxNodes limits
// rendered classes (0 = all).
func ClassgraphDOT(edges map[string][]disasm.CallEdge, title string, t Theme, maxNodes int) string {
	// Count methods per owner.
	ownerMethodCount := make(map[string]int)
	for caller := range edges {
		ownerMethodCount[ownerOf(caller)]++
	}

	// Aggregate inter-class edges.
	type classEdge struct {
		from, to string
	}
	classCounts := make(map[classEdge]int)
	for caller, sites := range edges {
		src := ownerOf(caller)
		for _, e := range sites {
			dst := ownerOf(e.TargetName)
			if dst == "" || dst == src {
				continue // unresolved dynamic sites and intra-class calls
			}
			classCounts[classEdge{src, dst}]++
		}
	}

	// Collect all classes involved in inter-class edges.
	classInvolvement := make(map[string]int)
	for ce, count := range classCounts {
		classInvolvement[ce.from] += count
		classInvolvement[ce.to] += count
	}

	// Rank classes by involvement for maxNodes limit.
	type rankedClass struct {
		name        string
		involvement int
	}
	ranked := make([]rankedClass, 0, len(classInvolvement))
	for name, inv := range classInvolvement {
		ranked = append(ranked, rankedClass{name, inv})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].involvement != ranked[j].involvement {
			return ranked[i].involvement > ranked[j].involvement
		}
		return ranked[i].name < ranked[j].name
	})

	renderSet := make(map[string]bool)
	limit := len(ranked)
	if maxNodes > 0 && limit > maxNodes {
		limit = maxNodes
	}
	for _, rc := range ranked[:limit] {
		renderSet[rc.name] = true
	}

	// Build DOT.
	var b strings.Builder
	b.WriteString("digraph classgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.5;\n")
	b.WriteString("  ranksep=0.8;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=\"filled,rounded\", fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=10, fontcolor=%q, height=0.4, margin=\"0.15,0.08\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	// Render class nodes.
	maxMethods := 1
	for name := range renderSet {
		if c := ownerMethodCount[name]; c > maxMethods {
			maxMethods = c
		}
	}
	for _, rc := range ranked[:limit] {
		name := rc.name
		id := dotID(name)
		methods, internal := ownerMethodCount[name]
		if !internal {
			fmt.Fprintf(&b, "  %s [label=<%s>, fontcolor=%q, style=dashed];\n", id, dotEscape(name), t.ExternalText)
			continue
		}

		// Scale node height by method count (log scale).
		height := 0.4 + 0.3*math.Log2(float64(methods)+1)/math.Log2(float64(maxMethods)+1)

		// Subtitle with method count.
		htmlLabel := fmt.Sprintf("<<font point-size=\"10\">%s</font><br/><font point-size=\"7\" color=\"%s\">%d methods</font>>",
			dotEscape(name), t.ExternalText, methods)
		fmt.Fprintf(&b, "  %s [label=%s, height=%.2f];\n", id, htmlLabel, height)
	}
	b.WriteByte('\n')

	// Render inter-class edges.
	var drawn []classEdge
	maxEdgeCount := 1
	for ce, count := range classCounts {
		if !renderSet[ce.from] || !renderSet[ce.to] {
			continue
		}
		drawn = append(drawn, ce)
		if count > maxEdgeCount {
			maxEdgeCount = count
		}
	}
	sort.Slice(drawn, func(i, j int) bool {
		if drawn[i].from != drawn[j].from {
			return drawn[i].from < drawn[j].from
		}
		return drawn[i].to < drawn[j].to
	})

	for _, ce := range drawn {
		count := classCounts[ce]
		pw := 0.5 + 2.0*math.Log2(float64(count)+1)/math.Log2(float64(maxEdgeCount)+1)
		attrs := fmt.Sprintf("penwidth=%.1f", pw)
		if count > 1 {
			attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%d</font>>",
				t.ExternalText, count)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(ce.from), dotID(ce.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
