package bel

import "testing"

func mkNode(fn FunctionType, name string) Node {
	return Node{Function: fn, Namespace: "HGNC", Name: name}
}

func mkEdge(g *Graph, src, dst Node, relation string) {
	g.AddEdge(src, dst, Edge{Relation: relation, Evidence: relation + ":" + src.Name + ">" + dst.Name})
}

func TestNodeHashStable(t *testing.T) {
	a := Node{Function: FunctionProtein, Namespace: "HGNC", Name: "AKT1", Variants: []string{"x", "a"}}
	b := Node{Function: FunctionProtein, Namespace: "HGNC", Name: "AKT1", Variants: []string{"a", "x"}}
	if a.Hash() != b.Hash() {
		t.Fatal("variant order changed the node hash")
	}
	if a.Hash() == a.Parent().Hash() {
		t.Fatal("variant node collides with its parent")
	}
}

func TestUnionIdempotent(t *testing.T) {
	g := NewGraph()
	mkEdge(g, mkNode(FunctionProtein, "AKT1"), mkNode(FunctionProtein, "EGFR"), "increases")

	u := UnionAll([]*Graph{g, g, g.Copy()})
	if len(u.Nodes) != 2 || len(u.Edges) != 1 {
		t.Fatalf("union = %d nodes %d edges, want 2/1", len(u.Nodes), len(u.Edges))
	}
}

func TestInducedSubgraph(t *testing.T) {
	g := NewGraph()
	a := mkNode(FunctionProtein, "A")
	b := mkNode(FunctionProtein, "B")
	c := mkNode(FunctionProtein, "C")
	mkEdge(g, a, b, "increases")
	mkEdge(g, b, c, "increases")

	sub := g.InducedSubgraph([]string{a.Hash(), b.Hash()})
	if len(sub.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(sub.Nodes))
	}
	if len(sub.Edges) != 1 {
		t.Fatalf("edges = %d, want 1 (only a->b survives)", len(sub.Edges))
	}
}

func TestNeighborhood(t *testing.T) {
	g := NewGraph()
	a := mkNode(FunctionProtein, "A")
	b := mkNode(FunctionProtein, "B")
	c := mkNode(FunctionProtein, "C")
	d := mkNode(FunctionProtein, "D")
	mkEdge(g, a, b, "increases")
	mkEdge(g, b, c, "increases")
	mkEdge(g, c, d, "increases")

	one := g.Neighborhood([]string{a.Hash()}, 1)
	if len(one) != 2 {
		t.Fatalf("1-hop = %d nodes, want 2", len(one))
	}
	two := g.Neighborhood([]string{a.Hash()}, 2)
	if len(two) != 3 {
		t.Fatalf("2-hop = %d nodes, want 3", len(two))
	}
}

func TestCollapseNode(t *testing.T) {
	g := NewGraph()
	variant := Node{Function: FunctionProtein, Namespace: "HGNC", Name: "AKT1", Variants: []string{`var("p.X1Y")`}}
	other := mkNode(FunctionProtein, "EGFR")
	mkEdge(g, variant, other, "increases")

	g.CollapseNode(variant.Hash(), variant.Parent())
	if _, ok := g.Nodes[variant.Hash()]; ok {
		t.Fatal("variant node survived collapse")
	}
	for _, e := range g.Edges {
		if e.Source != variant.Parent().Hash() {
			t.Fatalf("edge source = %s, want collapsed parent", e.Source)
		}
	}
}

func TestGraphHashIgnoresMetadata(t *testing.T) {
	g1 := NewGraph()
	mkEdge(g1, mkNode(FunctionProtein, "A"), mkNode(FunctionProtein, "B"), "increases")
	g2 := g1.Copy()
	g2.Name = "renamed"
	if g1.Hash() != g2.Hash() {
		t.Fatal("metadata changed the content hash")
	}

	g2.AddNode(mkNode(FunctionProtein, "C"))
	if g1.Hash() == g2.Hash() {
		t.Fatal("content change did not change the hash")
	}
}

func TestSummarize(t *testing.T) {
	g := NewGraph()
	a := mkNode(FunctionProtein, "A")
	b := mkNode(FunctionProtein, "B")
	g.AddEdge(a, b, Edge{
		Relation: "increases",
		Citation: &Citation{Type: "PubMed", Reference: "1", Authors: []string{"Smith J", "Jones K"}},
	})
	g.AddNode(mkNode(FunctionBioProcess, "apoptotic process"))

	s := g.Summarize()
	if s.Nodes != 3 || s.Edges != 1 {
		t.Fatalf("summary = %d nodes %d edges", s.Nodes, s.Edges)
	}
	if s.Citations != 1 || s.Authors != 2 {
		t.Fatalf("citations/authors = %d/%d, want 1/2", s.Citations, s.Authors)
	}
	if s.Components != 2 {
		t.Fatalf("components = %d, want 2", s.Components)
	}
	if s.Functions["p"] != 2 || s.Functions["bp"] != 1 {
		t.Fatalf("function histogram = %v", s.Functions)
	}
}
