// Package refgraph holds the navigation references of a document (outline
// entries and named destinations) as plain data keyed by page index.
package refgraph

import (
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// NoTarget marks a node or destination that does not point at a local page.
const NoTarget = -1

// NodeID indexes Graph.Nodes.
type NodeID int

// OutlineNode is one outline entry. Children are ordered ids into the arena.
type OutlineNode struct {
	Title    string
	TitleObj types.Object // direct string object as found in the source
	Target   int          // 0-based page index or NoTarget
	View     types.Array  // destination tail after the page, e.g. [/XYZ 0 792 null]
	URI      string       // target of a URI action on targetless entries
	Action   types.Dict   // other actions, fully direct so they survive a rewrite
	LinkLost bool         // the source link could not be resolved or carried
	Open     bool
	Children []NodeID
}

// Destination is a named destination.
type Destination struct {
	Target int
	View   types.Array
	Legacy bool // from the catalog /Dests dict rather than the /Names tree
}

// Graph is an arena of outline nodes plus the named destination mapping.
type Graph struct {
	Nodes        []OutlineNode
	Roots        []NodeID
	Destinations map[string]Destination
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{Destinations: map[string]Destination{}}
}

// Add appends a node under parent; a negative parent adds a root.
func (g *Graph) Add(parent NodeID, n OutlineNode) NodeID {
	id := NodeID(len(g.Nodes))
	n.Children = nil
	g.Nodes = append(g.Nodes, n)
	if parent < 0 {
		g.Roots = append(g.Roots, id)
	} else {
		g.Nodes[parent].Children = append(g.Nodes[parent].Children, id)
	}
	return id
}

// Node returns the node for id.
func (g *Graph) Node(id NodeID) *OutlineNode { return &g.Nodes[id] }

// Walk visits nodes depth-first in document order.
func (g *Graph) Walk(fn func(id NodeID, depth int)) {
	var visit func(ids []NodeID, depth int)
	visit = func(ids []NodeID, depth int) {
		for _, id := range ids {
			fn(id, depth)
			visit(g.Nodes[id].Children, depth+1)
		}
	}
	visit(g.Roots, 0)
}

// Count returns the number of nodes reachable from the roots.
func (g *Graph) Count() int {
	n := 0
	g.Walk(func(NodeID, int) { n++ })
	return n
}

// DestinationNames returns destination names in sorted order.
func (g *Graph) DestinationNames() []string {
	names := make([]string, 0, len(g.Destinations))
	for k := range g.Destinations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
