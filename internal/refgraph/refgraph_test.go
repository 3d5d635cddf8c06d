package refgraph

import "testing"

func TestAddAndWalk(t *testing.T) {
	g := New()
	a := g.Add(-1, OutlineNode{Title: "A", Target: 0})
	g.Add(a, OutlineNode{Title: "A.1", Target: 1})
	g.Add(a, OutlineNode{Title: "A.2", Target: 2})
	g.Add(-1, OutlineNode{Title: "B", Target: NoTarget})

	var titles []string
	var depths []int
	g.Walk(func(id NodeID, depth int) {
		titles = append(titles, g.Node(id).Title)
		depths = append(depths, depth)
	})

	want := []string{"A", "A.1", "A.2", "B"}
	wantDepth := []int{0, 1, 1, 0}
	if len(titles) != len(want) {
		t.Fatalf("expected %v, got %v", want, titles)
	}
	for i := range want {
		if titles[i] != want[i] || depths[i] != wantDepth[i] {
			t.Errorf("node %d: expected %s@%d, got %s@%d", i, want[i], wantDepth[i], titles[i], depths[i])
		}
	}
	if g.Count() != 4 {
		t.Errorf("expected count 4, got %d", g.Count())
	}
}

func TestDestinationNamesSorted(t *testing.T) {
	g := New()
	g.Destinations["zeta"] = Destination{Target: 1}
	g.Destinations["alpha"] = Destination{Target: 0}
	names := g.DestinationNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("unexpected order %v", names)
	}
}
