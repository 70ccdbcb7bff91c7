package query

import (
	"context"
	"errors"
	"testing"

	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
)

type fakeStore struct {
	assemblies map[int64]Assembly
	byHash     map[string]int64
	queries    map[int64]Query
	networks   map[int64]*bel.Graph
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assemblies: make(map[int64]Assembly),
		byHash:     make(map[string]int64),
		queries:    make(map[int64]Query),
		networks:   make(map[int64]*bel.Graph),
	}
}

func (s *fakeStore) GetAssembly(_ context.Context, id int64) (Assembly, error) {
	a, ok := s.assemblies[id]
	if !ok {
		return Assembly{}, ErrAssemblyNotFound
	}
	return a, nil
}

func (s *fakeStore) GetAssemblyByHash(_ context.Context, hash string) (Assembly, error) {
	id, ok := s.byHash[hash]
	if !ok {
		return Assembly{}, ErrAssemblyNotFound
	}
	return s.assemblies[id], nil
}

func (s *fakeStore) CreateAssembly(_ context.Context, hash string, networkIDs []int64) (Assembly, error) {
	s.nextID++
	a := Assembly{ID: s.nextID, Hash: hash, NetworkIDs: networkIDs}
	s.assemblies[a.ID] = a
	s.byHash[hash] = a.ID
	return a, nil
}

func (s *fakeStore) CreateQuery(_ context.Context, parentID, assemblyID int64, seeds, steps []byte) (Query, error) {
	s.nextID++
	q := Query{ID: s.nextID, ParentID: parentID, AssemblyID: assemblyID, Seeds: seeds, Pipeline: steps}
	s.queries[q.ID] = q
	return q, nil
}

func (s *fakeStore) GetQuery(_ context.Context, id int64) (Query, error) {
	q, ok := s.queries[id]
	if !ok {
		return Query{}, ErrQueryNotFound
	}
	return q, nil
}

func (s *fakeStore) GetNetworkGraph(_ context.Context, networkID int64) (*bel.Graph, error) {
	g, ok := s.networks[networkID]
	if !ok {
		return nil, errors.New("network not found")
	}
	return g, nil
}

func protein(name string) bel.Node {
	return bel.Node{Function: bel.FunctionProtein, Namespace: "HGNC", Name: name}
}

func edge(g *bel.Graph, src, dst string) {
	g.AddEdge(protein(src), protein(dst), bel.Edge{Relation: "increases", Evidence: src + ">" + dst})
}

func seededStore() *fakeStore {
	store := newFakeStore()
	g1 := bel.NewGraph()
	edge(g1, "A", "B")
	edge(g1, "B", "C")
	g2 := bel.NewGraph()
	edge(g2, "C", "D")
	store.networks[101] = g1
	store.networks[102] = g2
	return store
}

func TestBuildEmptyAssembly(t *testing.T) {
	store := newFakeStore()
	b := NewBuilder(store, pipeline.Default())
	if _, err := b.Build(context.Background(), nil, nil, nil); !errors.Is(err, ErrEmptyAssembly) {
		t.Fatalf("err = %v, want ErrEmptyAssembly", err)
	}
	if len(store.queries) != 0 || len(store.assemblies) != 0 {
		t.Fatal("empty build persisted rows")
	}
}

func TestBuildReusesAssembly(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	q1, err := b.Build(context.Background(), []int64{102, 101}, nil, nil)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	q2, err := b.Build(context.Background(), []int64{101, 102, 102}, nil, nil)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if q1.AssemblyID != q2.AssemblyID {
		t.Fatalf("assemblies differ: %d vs %d", q1.AssemblyID, q2.AssemblyID)
	}
	if len(store.assemblies) != 1 {
		t.Fatalf("assembly rows = %d, want 1", len(store.assemblies))
	}
}

func TestRunUnionAndSeeds(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	q, err := b.Build(context.Background(), []int64{101, 102}, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	full, err := b.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(full.Nodes) != 4 || len(full.Edges) != 3 {
		t.Fatalf("union = %d nodes %d edges, want 4/3", len(full.Nodes), len(full.Edges))
	}

	seeded, err := b.Build(context.Background(), []int64{101, 102},
		[]pipeline.Seed{&pipeline.SeedNeighbors{Hashes: []string{protein("C").Hash()}, Hops: 1}}, nil)
	if err != nil {
		t.Fatalf("build seeded: %v", err)
	}
	sub, err := b.Run(context.Background(), seeded)
	if err != nil {
		t.Fatalf("run seeded: %v", err)
	}
	// C plus its direct neighbors B and D, with edges B->C and C->D.
	if len(sub.Nodes) != 3 || len(sub.Edges) != 2 {
		t.Fatalf("seeded = %d nodes %d edges, want 3/2", len(sub.Nodes), len(sub.Edges))
	}
}

func TestRunSeedIntersectionAndUnion(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	intersect := []pipeline.Seed{
		&pipeline.SeedNodes{Hashes: []string{protein("A").Hash(), protein("B").Hash()}},
		&pipeline.SeedNodes{Hashes: []string{protein("B").Hash(), protein("C").Hash()}},
	}
	q, err := b.Build(context.Background(), []int64{101, 102}, intersect, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	g, err := b.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("intersection = %d nodes, want only B", len(g.Nodes))
	}

	union := []pipeline.Seed{
		&pipeline.SeedNodes{Hashes: []string{protein("A").Hash()}},
		&pipeline.SeedAnnotation{Key: "none", Values: nil, Union: true},
	}
	q2, err := b.Build(context.Background(), []int64{101, 102}, union, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	g2, err := b.Run(context.Background(), q2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(g2.Nodes) != 1 {
		t.Fatalf("union with empty selection = %d nodes, want 1", len(g2.Nodes))
	}
}

func TestRunIdempotent(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	q, err := b.Build(context.Background(), []int64{101, 102},
		[]pipeline.Seed{&pipeline.SeedNeighbors{Hashes: []string{protein("B").Hash()}}},
		[]pipeline.Step{&pipeline.RemoveIsolated{}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	first, err := b.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := b.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.Hash() != second.Hash() {
		t.Fatal("two runs of the same query differ")
	}
}

func TestBuildAppendedKeepsParent(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	parent, err := b.Build(context.Background(), []int64{101}, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	child, err := b.BuildAppended(context.Background(), parent, &pipeline.RemovePathologies{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if child.ID <= parent.ID {
		t.Fatalf("child id %d not after parent id %d", child.ID, parent.ID)
	}
	if child.ParentID != parent.ID {
		t.Fatalf("child parent = %d, want %d", child.ParentID, parent.ID)
	}

	stored := store.queries[parent.ID]
	if string(stored.Pipeline) != string(parent.Pipeline) {
		t.Fatal("parent pipeline was mutated by derivation")
	}
	childSteps, err := pipeline.Default().DecodePipeline(child.Pipeline)
	if err != nil {
		t.Fatalf("decode child pipeline: %v", err)
	}
	if len(childSteps) != 1 {
		t.Fatalf("child pipeline has %d steps, want 1", len(childSteps))
	}
}

func TestBuildSeededKeepsParent(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	parent, err := b.Build(context.Background(), []int64{101},
		[]pipeline.Seed{&pipeline.SeedNodes{Hashes: []string{protein("A").Hash()}}}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	child, err := b.BuildSeeded(context.Background(), parent,
		&pipeline.SeedNodes{Hashes: []string{protein("B").Hash()}})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	childSeeds, err := pipeline.Default().DecodeSeeds(child.Seeds)
	if err != nil {
		t.Fatalf("decode child seeds: %v", err)
	}
	if len(childSeeds) != 2 {
		t.Fatalf("child has %d seeds, want 2", len(childSeeds))
	}
	parentSeeds, err := pipeline.Default().DecodeSeeds(store.queries[parent.ID].Seeds)
	if err != nil {
		t.Fatalf("decode parent seeds: %v", err)
	}
	if len(parentSeeds) != 1 {
		t.Fatal("parent seed list was mutated by derivation")
	}
}

func TestAncestors(t *testing.T) {
	store := seededStore()
	b := NewBuilder(store, pipeline.Default())

	root, err := b.Build(context.Background(), []int64{101}, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	mid, err := b.BuildAppended(context.Background(), root, &pipeline.CollapseVariants{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	leaf, err := b.BuildAppended(context.Background(), mid, &pipeline.RemoveIsolated{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	chain, err := b.Ancestors(context.Background(), leaf.ID)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	if chain[0].ID != root.ID || chain[2].ID != leaf.ID {
		t.Fatalf("chain order = [%d %d %d], want root first", chain[0].ID, chain[1].ID, chain[2].ID)
	}
}
