package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/bel-commons/bel-commons/pkg/bel"
)

func protein(name string) bel.Node {
	return bel.Node{Function: bel.FunctionProtein, Namespace: "HGNC", Name: name}
}

func chain(names ...string) *bel.Graph {
	g := bel.NewGraph()
	for i := 0; i+1 < len(names); i++ {
		g.AddEdge(protein(names[i]), protein(names[i+1]), bel.Edge{Relation: "increases"})
	}
	return g
}

func TestRoundTripSeeds(t *testing.T) {
	r := Default()
	seeds := []Seed{
		&SeedNeighbors{Hashes: []string{"abc"}, Hops: 2},
		&SeedAnnotation{Key: "Tissue", Values: []string{"liver"}, Union: true},
		&SeedSample{Count: 5, Seed: 42},
	}
	data, err := r.EncodeSeeds(seeds)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := r.DecodeSeeds(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(seeds, decoded) {
		t.Fatalf("round trip changed seeds:\n got %#v\nwant %#v", decoded, seeds)
	}
}

func TestRoundTripPipeline(t *testing.T) {
	r := Default()
	steps := []Step{
		&CollapseVariants{},
		&RemoveNamespace{Namespace: "MESHD"},
		&ExpandNeighborhood{Hops: 3},
	}
	data, err := r.EncodePipeline(steps)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := r.DecodePipeline(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(steps, decoded) {
		t.Fatalf("round trip changed steps:\n got %#v\nwant %#v", decoded, steps)
	}
}

func TestUnknownOperation(t *testing.T) {
	r := Default()
	if _, err := r.NewStep("frobnicate", nil); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
	if _, err := r.NewSeed("frobnicate", nil); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
	data, _ := json.Marshal([]opEnvelope{{Op: "frobnicate"}})
	if _, err := r.DecodePipeline(data); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("decode err = %v, want ErrUnknownOperation", err)
	}
}

func TestSeedAnnotation(t *testing.T) {
	g := bel.NewGraph()
	a, b, c := protein("A"), protein("B"), protein("C")
	g.AddEdge(a, b, bel.Edge{Relation: "increases", Annotations: map[string]string{"Tissue": "liver"}})
	g.AddEdge(b, c, bel.Edge{Relation: "increases", Annotations: map[string]string{"Tissue": "brain"}})

	seed := &SeedAnnotation{Key: "Tissue", Values: []string{"liver"}}
	got := seed.Select(g)
	want := []string{a.Hash(), b.Hash()}
	if len(got) != 2 {
		t.Fatalf("selected %d nodes, want 2", len(got))
	}
	for _, h := range want {
		found := false
		for _, s := range got {
			if s == h {
				found = true
			}
		}
		if !found {
			t.Fatalf("node %s missing from selection %v", h, got)
		}
	}
}

func TestSeedSampleDeterministic(t *testing.T) {
	g := chain("A", "B", "C", "D", "E", "F")
	seed := &SeedSample{Count: 3, Seed: 7}
	first := seed.Select(g)
	second := seed.Select(g)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different samples: %v vs %v", first, second)
	}
	if len(first) != 3 {
		t.Fatalf("sample size = %d, want 3", len(first))
	}
}

func TestCollapseVariantsStep(t *testing.T) {
	g := bel.NewGraph()
	variant := bel.Node{Function: bel.FunctionProtein, Namespace: "HGNC", Name: "AKT1", Variants: []string{`var("p.X1Y")`}}
	g.AddEdge(variant, protein("EGFR"), bel.Edge{Relation: "increases"})

	out, err := (&CollapseVariants{}).Apply(nil, g)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, n := range out.Nodes {
		if len(n.Variants) != 0 {
			t.Fatalf("variant node survived: %+v", n)
		}
	}
	if len(out.Nodes) != 2 || len(out.Edges) != 1 {
		t.Fatalf("collapsed graph = %d nodes %d edges, want 2/1", len(out.Nodes), len(out.Edges))
	}
	if len(g.Nodes) != 2 {
		t.Fatal("input graph was mutated")
	}
}

func TestCollapseToGenesStep(t *testing.T) {
	g := bel.NewGraph()
	p := protein("AKT1")
	r := bel.Node{Function: bel.FunctionRNA, Namespace: "HGNC", Name: "AKT1"}
	g.AddEdge(p, protein("EGFR"), bel.Edge{Relation: "increases"})
	g.AddNode(r)

	out, err := (&CollapseToGenes{}).Apply(nil, g)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2 genes", len(out.Nodes))
	}
	for _, n := range out.Nodes {
		if n.Function != bel.FunctionGene {
			t.Fatalf("non-gene node survived: %+v", n)
		}
	}
}

func TestRemovePathologiesStep(t *testing.T) {
	g := bel.NewGraph()
	path := bel.Node{Function: bel.FunctionPathology, Namespace: "MESHD", Name: "Neoplasms"}
	g.AddEdge(protein("TP53"), path, bel.Edge{Relation: "decreases"})

	out, err := (&RemovePathologies{}).Apply(nil, g)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.Nodes) != 1 || len(out.Edges) != 0 {
		t.Fatalf("graph = %d nodes %d edges, want 1/0", len(out.Nodes), len(out.Edges))
	}
}

func TestExpandNeighborhoodStep(t *testing.T) {
	universe := chain("A", "B", "C", "D")
	current := universe.InducedSubgraph([]string{protein("A").Hash(), protein("B").Hash()})

	out, err := (&ExpandNeighborhood{Hops: 1}).Apply(universe, current)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.Nodes) != 3 {
		t.Fatalf("expanded nodes = %d, want 3", len(out.Nodes))
	}
	if len(out.Edges) != 2 {
		t.Fatalf("expanded edges = %d, want 2", len(out.Edges))
	}
}

func TestPruneLeavesStep(t *testing.T) {
	// Triangle with a pendant tail: the tail goes, the triangle stays.
	g := chain("A", "B", "C")
	g.AddEdge(protein("C"), protein("A"), bel.Edge{Relation: "increases"})
	g.AddEdge(protein("C"), protein("D"), bel.Edge{Relation: "increases"})

	out, err := (&PruneLeaves{}).Apply(nil, g)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.Nodes) != 3 {
		t.Fatalf("nodes = %d, want the 3-cycle", len(out.Nodes))
	}
	if _, ok := out.Nodes[protein("D").Hash()]; ok {
		t.Fatal("pendant node survived pruning")
	}
}

func TestRemoveIsolatedStep(t *testing.T) {
	g := chain("A", "B")
	g.AddNode(protein("LONER"))

	out, err := (&RemoveIsolated{}).Apply(nil, g)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(out.Nodes))
	}
}
