// Package query implements the stored query model: a query references an
// assembly of networks, a list of seed operations and a transformation
// pipeline, all persisted so the same result can be rebuilt at any time.
// Derived queries form an append-only forest; a child never mutates its
// parent, it is a new row pointing back at it.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
)

var (
	// ErrEmptyAssembly is returned before anything is persisted when a
	// query is built over zero networks.
	ErrEmptyAssembly = errors.New("assembly contains no networks")

	// ErrAssemblyNotFound is returned by stores when no assembly matches.
	ErrAssemblyNotFound = errors.New("assembly not found")

	// ErrQueryNotFound is returned by stores when no query matches.
	ErrQueryNotFound = errors.New("query not found")
)

// Assembly is a content addressed, immutable set of network ids. Two
// queries over the same networks share one assembly row.
type Assembly struct {
	ID         int64
	Hash       string
	NetworkIDs []int64
}

// Query is one persisted query. ParentID is zero for root queries.
type Query struct {
	ID         int64
	ParentID   int64
	AssemblyID int64
	Seeds      []byte
	Pipeline   []byte
	CreatedAt  time.Time
}

// Store is the persistence surface the builder needs.
type Store interface {
	GetAssembly(ctx context.Context, id int64) (Assembly, error)
	GetAssemblyByHash(ctx context.Context, hash string) (Assembly, error)
	CreateAssembly(ctx context.Context, hash string, networkIDs []int64) (Assembly, error)
	CreateQuery(ctx context.Context, parentID, assemblyID int64, seeds, pipeline []byte) (Query, error)
	GetQuery(ctx context.Context, id int64) (Query, error)
	GetNetworkGraph(ctx context.Context, networkID int64) (*bel.Graph, error)
}

// Builder persists and executes queries.
type Builder struct {
	store    Store
	registry *pipeline.Registry
}

// NewBuilder returns a builder over the given store and operation registry.
func NewBuilder(store Store, registry *pipeline.Registry) *Builder {
	return &Builder{store: store, registry: registry}
}

// AssemblyHash returns the content hash of a network id set. Order and
// duplicates do not matter.
func AssemblyHash(networkIDs []int64) string {
	ids := normalizeIDs(networkIDs)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

func normalizeIDs(networkIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(networkIDs))
	ids := make([]int64, 0, len(networkIDs))
	for _, id := range networkIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Build persists a new root query over the given networks. The assembly is
// reused when one with the same content hash already exists.
func (b *Builder) Build(ctx context.Context, networkIDs []int64, seeds []pipeline.Seed, steps []pipeline.Step) (Query, error) {
	ids := normalizeIDs(networkIDs)
	if len(ids) == 0 {
		return Query{}, ErrEmptyAssembly
	}

	hash := AssemblyHash(ids)
	assembly, err := b.store.GetAssemblyByHash(ctx, hash)
	if errors.Is(err, ErrAssemblyNotFound) {
		assembly, err = b.store.CreateAssembly(ctx, hash, ids)
	}
	if err != nil {
		return Query{}, fmt.Errorf("resolve assembly: %w", err)
	}

	seedData, err := b.registry.EncodeSeeds(seeds)
	if err != nil {
		return Query{}, fmt.Errorf("encode seeds: %w", err)
	}
	stepData, err := b.registry.EncodePipeline(steps)
	if err != nil {
		return Query{}, fmt.Errorf("encode pipeline: %w", err)
	}
	return b.store.CreateQuery(ctx, 0, assembly.ID, seedData, stepData)
}

// BuildAppended derives a child query from parent with one extra
// transformation at the end of the pipeline. The parent row is untouched.
func (b *Builder) BuildAppended(ctx context.Context, parent Query, step pipeline.Step) (Query, error) {
	steps, err := b.registry.DecodePipeline(parent.Pipeline)
	if err != nil {
		return Query{}, fmt.Errorf("decode parent pipeline: %w", err)
	}
	stepData, err := b.registry.EncodePipeline(append(steps, step))
	if err != nil {
		return Query{}, fmt.Errorf("encode pipeline: %w", err)
	}
	return b.createChild(ctx, parent, parent.Seeds, stepData)
}

// BuildSeeded derives a child query from parent with one extra seed
// operation at the end of the seed list. The parent row is untouched.
func (b *Builder) BuildSeeded(ctx context.Context, parent Query, seed pipeline.Seed) (Query, error) {
	seeds, err := b.registry.DecodeSeeds(parent.Seeds)
	if err != nil {
		return Query{}, fmt.Errorf("decode parent seeds: %w", err)
	}
	seedData, err := b.registry.EncodeSeeds(append(seeds, seed))
	if err != nil {
		return Query{}, fmt.Errorf("encode seeds: %w", err)
	}
	return b.createChild(ctx, parent, seedData, parent.Pipeline)
}

func (b *Builder) createChild(ctx context.Context, parent Query, seeds, steps []byte) (Query, error) {
	child, err := b.store.CreateQuery(ctx, parent.ID, parent.AssemblyID, seeds, steps)
	if err != nil {
		return Query{}, err
	}
	if child.ID <= parent.ID {
		return Query{}, fmt.Errorf("query forest corrupted: child id %d not after parent id %d", child.ID, parent.ID)
	}
	return child, nil
}

// Run executes the query: union the assembly's networks, seed, then apply
// the pipeline. Running the same query twice yields the same graph.
func (b *Builder) Run(ctx context.Context, q Query) (*bel.Graph, error) {
	assembly, err := b.store.GetAssembly(ctx, q.AssemblyID)
	if err != nil {
		return nil, fmt.Errorf("load assembly %d: %w", q.AssemblyID, err)
	}

	graphs := make([]*bel.Graph, 0, len(assembly.NetworkIDs))
	for _, id := range assembly.NetworkIDs {
		g, err := b.store.GetNetworkGraph(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load network %d: %w", id, err)
		}
		graphs = append(graphs, g)
	}
	universe := bel.UnionAll(graphs)

	seeds, err := b.registry.DecodeSeeds(q.Seeds)
	if err != nil {
		return nil, fmt.Errorf("decode seeds: %w", err)
	}
	current := universe.Copy()
	if len(seeds) > 0 {
		current = universe.InducedSubgraph(applySeeds(universe, seeds))
	}

	steps, err := b.registry.DecodePipeline(q.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	for _, step := range steps {
		current, err = step.Apply(universe, current)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", step.Name(), err)
		}
	}
	return current, nil
}

// applySeeds folds the seed selections: intersection by default, union when
// a seed is marked so.
func applySeeds(universe *bel.Graph, seeds []pipeline.Seed) []string {
	var acc map[string]struct{}
	for _, seed := range seeds {
		selection := make(map[string]struct{})
		for _, h := range seed.Select(universe) {
			selection[h] = struct{}{}
		}
		switch {
		case acc == nil:
			acc = selection
		case seed.Or():
			for h := range selection {
				acc[h] = struct{}{}
			}
		default:
			for h := range acc {
				if _, ok := selection[h]; !ok {
					delete(acc, h)
				}
			}
		}
	}
	out := make([]string, 0, len(acc))
	for h := range acc {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Ancestors returns the derivation chain of the query, root first, ending
// with the query itself.
func (b *Builder) Ancestors(ctx context.Context, id int64) ([]Query, error) {
	var chain []Query
	for id != 0 {
		q, err := b.store.GetQuery(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, q)
		if q.ParentID >= q.ID {
			return nil, fmt.Errorf("query forest corrupted: query %d has parent %d", q.ID, q.ParentID)
		}
		id = q.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
