// Package pipeline defines the seed and transformation operations a stored
// query is built from. Operations are tagged variants: each one is a typed
// struct registered under a stable name, serialized as {"op": name, "args":
// {...}} so a persisted query can be reconstructed later. The registry is an
// explicit value constructed at startup and passed to whoever executes
// queries; it is append-only by policy, since stored queries reference
// operations by name.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bel-commons/bel-commons/pkg/bel"
)

// ErrUnknownOperation is returned when a stored or requested operation name
// is not present in the registry.
var ErrUnknownOperation = errors.New("unknown operation")

// Seed selects the starting node set of a query from the assembled graph.
type Seed interface {
	Name() string
	// Select returns the node hashes this seed selects from g.
	Select(g *bel.Graph) []string
	// Or reports whether the selection combines with the accumulated seed
	// selection by union instead of the default intersection.
	Or() bool
}

// Step is one graph transformation. universe is the untouched union of the
// assembly's networks, available for expansion steps; current is the working
// graph produced by the previous step.
type Step interface {
	Name() string
	Apply(universe, current *bel.Graph) (*bel.Graph, error)
}

// Registry maps operation names to their variants.
type Registry struct {
	seeds map[string]func() Seed
	steps map[string]func() Step
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		seeds: make(map[string]func() Seed),
		steps: make(map[string]func() Step),
	}
}

// Default returns a registry with every built-in operation registered.
func Default() *Registry {
	r := NewRegistry()
	r.RegisterSeed(SeedOpNodes, func() Seed { return &SeedNodes{} })
	r.RegisterSeed(SeedOpNeighbors, func() Seed { return &SeedNeighbors{} })
	r.RegisterSeed(SeedOpAnnotation, func() Seed { return &SeedAnnotation{} })
	r.RegisterSeed(SeedOpAuthors, func() Seed { return &SeedAuthors{} })
	r.RegisterSeed(SeedOpCitations, func() Seed { return &SeedCitations{} })
	r.RegisterSeed(SeedOpSample, func() Seed { return &SeedSample{} })
	r.RegisterStep(StepOpCollapseToGenes, func() Step { return &CollapseToGenes{} })
	r.RegisterStep(StepOpCollapseVariants, func() Step { return &CollapseVariants{} })
	r.RegisterStep(StepOpRemovePathologies, func() Step { return &RemovePathologies{} })
	r.RegisterStep(StepOpRemoveNamespace, func() Step { return &RemoveNamespace{} })
	r.RegisterStep(StepOpRemoveIsolated, func() Step { return &RemoveIsolated{} })
	r.RegisterStep(StepOpExpandNeighborhood, func() Step { return &ExpandNeighborhood{} })
	r.RegisterStep(StepOpInferCentralDogma, func() Step { return &InferCentralDogma{} })
	r.RegisterStep(StepOpPruneLeaves, func() Step { return &PruneLeaves{} })
	return r
}

// RegisterSeed adds a seed variant under its name.
func (r *Registry) RegisterSeed(name string, factory func() Seed) {
	r.seeds[name] = factory
}

// RegisterStep adds a transformation variant under its name.
func (r *Registry) RegisterStep(name string, factory func() Step) {
	r.steps[name] = factory
}

// SeedNames returns the registered seed operation names.
func (r *Registry) SeedNames() []string {
	names := make([]string, 0, len(r.seeds))
	for name := range r.seeds {
		names = append(names, name)
	}
	return names
}

// StepNames returns the registered transformation names.
func (r *Registry) StepNames() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	return names
}

// NewSeed constructs the named seed variant and unmarshals args into it.
func (r *Registry) NewSeed(name string, args json.RawMessage) (Seed, error) {
	factory, ok := r.seeds[name]
	if !ok {
		return nil, fmt.Errorf("seed %q: %w", name, ErrUnknownOperation)
	}
	seed := factory()
	if len(args) > 0 {
		if err := json.Unmarshal(args, seed); err != nil {
			return nil, fmt.Errorf("decode seed %q args: %w", name, err)
		}
	}
	return seed, nil
}

// NewStep constructs the named transformation and unmarshals args into it.
func (r *Registry) NewStep(name string, args json.RawMessage) (Step, error) {
	factory, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("step %q: %w", name, ErrUnknownOperation)
	}
	step := factory()
	if len(args) > 0 {
		if err := json.Unmarshal(args, step); err != nil {
			return nil, fmt.Errorf("decode step %q args: %w", name, err)
		}
	}
	return step, nil
}

type opEnvelope struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// EncodeSeeds serializes a seed list to its persisted form.
func (r *Registry) EncodeSeeds(seeds []Seed) ([]byte, error) {
	envelopes := make([]opEnvelope, 0, len(seeds))
	for _, seed := range seeds {
		args, err := json.Marshal(seed)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, opEnvelope{Op: seed.Name(), Args: args})
	}
	return json.Marshal(envelopes)
}

// DecodeSeeds reconstructs a seed list from its persisted form.
func (r *Registry) DecodeSeeds(data []byte) ([]Seed, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var envelopes []opEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}
	seeds := make([]Seed, 0, len(envelopes))
	for _, env := range envelopes {
		seed, err := r.NewSeed(env.Op, env.Args)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// EncodePipeline serializes a transformation list to its persisted form.
func (r *Registry) EncodePipeline(steps []Step) ([]byte, error) {
	envelopes := make([]opEnvelope, 0, len(steps))
	for _, step := range steps {
		args, err := json.Marshal(step)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, opEnvelope{Op: step.Name(), Args: args})
	}
	return json.Marshal(envelopes)
}

// DecodePipeline reconstructs a transformation list from its persisted form.
func (r *Registry) DecodePipeline(data []byte) ([]Step, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var envelopes []opEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(envelopes))
	for _, env := range envelopes {
		step, err := r.NewStep(env.Op, env.Args)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}
