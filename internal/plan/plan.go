// Package plan reconciles page decisions with the document's references.
package plan

import (
	"fmt"

	"github.com/local/pdfeditor/internal/detect"
	"github.com/local/pdfeditor/internal/refgraph"
)

// Plan is the edit to apply to one document.
type Plan struct {
	PageCount int
	// Retained holds original indices of kept pages in original order.
	Retained []int
	// Removed holds original indices of dropped pages, ascending.
	Removed []int
	// NewIndex maps an original page index to its output index, or -1.
	NewIndex []int
	// References is the pruned graph with targets in output indices.
	References *refgraph.Graph

	OutlinesKept        int
	OutlinesDropped     int
	DestinationsKept    int
	DestinationsDropped int
	// DestinationsUnresolved counts dropped destinations that never pointed
	// at a local page. They are included in DestinationsDropped.
	DestinationsUnresolved int
	// OutlineLinksLost counts kept outline entries written without the link
	// they had in the source.
	OutlineLinksLost int
}

// Unchanged reports whether the plan removes nothing.
func (p *Plan) Unchanged() bool { return len(p.Removed) == 0 }

// IsRemoved reports whether original page i is dropped.
func (p *Plan) IsRemoved(i int) bool {
	return i >= 0 && i < len(p.NewIndex) && p.NewIndex[i] < 0
}

// Build computes the plan. decisions must cover pages 0..n-1 in order.
// The source graph is not modified.
func Build(decisions []detect.CombinedDecision, graph *refgraph.Graph) (*Plan, error) {
	n := len(decisions)
	p := &Plan{
		PageCount:  n,
		NewIndex:   make([]int, n),
		References: refgraph.New(),
	}
	for i, d := range decisions {
		if d.PageIndex != i {
			return nil, fmt.Errorf("decision %d has page index %d", i, d.PageIndex)
		}
		if d.IsEmpty {
			p.NewIndex[i] = -1
			p.Removed = append(p.Removed, i)
			continue
		}
		p.NewIndex[i] = len(p.Retained)
		p.Retained = append(p.Retained, i)
	}
	if graph == nil {
		return p, nil
	}

	pr := &pruner{plan: p, src: graph, dst: p.References}
	pr.prune(graph.Roots, -1)

	for _, name := range graph.DestinationNames() {
		dst := graph.Destinations[name]
		if dst.Target == refgraph.NoTarget {
			p.DestinationsDropped++
			p.DestinationsUnresolved++
			continue
		}
		target, ok := pr.remap(dst.Target)
		if !ok {
			p.DestinationsDropped++
			continue
		}
		dst.Target = target
		p.References.Destinations[name] = dst
		p.DestinationsKept++
	}
	return p, nil
}

type pruner struct {
	plan *Plan
	src  *refgraph.Graph
	dst  *refgraph.Graph
}

// remap returns the output index for an original target. Targetless
// references stay targetless; targets on removed or unknown pages fail.
func (pr *pruner) remap(target int) (int, bool) {
	if target == refgraph.NoTarget {
		return refgraph.NoTarget, true
	}
	if target < 0 || target >= len(pr.plan.NewIndex) {
		return 0, false
	}
	ni := pr.plan.NewIndex[target]
	return ni, ni >= 0
}

// prune copies surviving nodes under parent. A dropped node's surviving
// descendants take its place among parent's children, in order.
func (pr *pruner) prune(ids []refgraph.NodeID, parent refgraph.NodeID) {
	for _, id := range ids {
		node := pr.src.Nodes[id]
		target, ok := pr.remap(node.Target)
		if !ok {
			pr.plan.OutlinesDropped++
			pr.prune(node.Children, parent)
			continue
		}
		node.Target = target
		children := node.Children
		nid := pr.dst.Add(parent, node)
		pr.plan.OutlinesKept++
		if node.LinkLost {
			pr.plan.OutlineLinksLost++
		}
		pr.prune(children, nid)
	}
}

// Validate checks that every reference targets a valid output page.
func (p *Plan) Validate() error {
	out := len(p.Retained)
	for i, node := range p.References.Nodes {
		if node.Target != refgraph.NoTarget && (node.Target < 0 || node.Target >= out) {
			return fmt.Errorf("outline node %d targets page %d of %d", i, node.Target, out)
		}
	}
	for name, d := range p.References.Destinations {
		if d.Target != refgraph.NoTarget && (d.Target < 0 || d.Target >= out) {
			return fmt.Errorf("destination %q targets page %d of %d", name, d.Target, out)
		}
	}
	return nil
}
