// Package heat scores the nodes of a BEL network against differential gene
// expression data using a permuted heat diffusion workflow. Each node gets a
// five number summary of its score distribution over the permutations.
package heat

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
)

// DefaultPermutations is used when a workflow does not set its own count.
const DefaultPermutations = 200

// diffusionRounds is how many times heat flows along edges before scores are
// read off. Two rounds reach the indirect upstream layer without washing the
// signal out.
const diffusionRounds = 2

// Result maps node hash to (min, max, median, mean, stddev) of the node's
// score over all permutations. The median at index 2 is what downstream
// ranking reads.
type Result map[string][5]float64

// Workflow holds the tunables of one experiment run.
type Workflow struct {
	// Permutations is the number of label shuffles to score.
	Permutations int
	// UnsupportedNamespaces lists namespaces the omics platform cannot
	// measure; their nodes are dropped before scoring.
	UnsupportedNamespaces []string
	// Seed makes the permutation stream reproducible.
	Seed int64
}

// Run executes the workflow: preprocess the graph, split it into candidate
// mechanism subgraphs around its biological processes, then score every
// surviving node over the permuted overlays within its candidate. values
// maps gene symbol to its measured log fold change; genes absent from values
// overlay as neutral zero.
func (w Workflow) Run(ctx context.Context, g *bel.Graph, values map[string]float64) (Result, error) {
	permutations := w.Permutations
	if permutations <= 0 {
		permutations = DefaultPermutations
	}

	prepared, err := w.prepare(g)
	if err != nil {
		return nil, err
	}
	if len(prepared.Nodes) == 0 {
		return Result{}, nil
	}

	order := make([]string, 0, len(prepared.Nodes))
	for h := range prepared.Nodes {
		order = append(order, h)
	}
	sort.Strings(order)
	index := make(map[string]int, len(order))
	for i, h := range order {
		index[h] = i
	}

	baseline := overlay(prepared, order, values)
	cands := candidates(prepared)

	// Each permutation writes its own row, so the goroutines never touch
	// shared state.
	scores := make([][]float64, permutations)
	eg, ctx := errgroup.WithContext(ctx)
	for i := range permutations {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(w.Seed + int64(i)))
			shuffled := make([]float64, len(baseline))
			copy(shuffled, baseline)
			rng.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})

			// Heat flows inside each candidate only. A node shared by
			// several candidates averages its per-candidate scores.
			row := make([]float64, len(order))
			counts := make([]int, len(order))
			for _, cand := range cands {
				initial := make([]float64, len(cand.order))
				for j, h := range cand.order {
					initial[j] = shuffled[index[h]]
				}
				local := diffuse(cand.graph, cand.order, initial)
				for j, h := range cand.order {
					idx := index[h]
					row[idx] += local[j]
					counts[idx]++
				}
			}
			for idx := range row {
				if counts[idx] > 1 {
					row[idx] /= float64(counts[idx])
				}
			}
			scores[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(Result, len(order))
	sample := make([]float64, permutations)
	for idx, h := range order {
		for p := range permutations {
			sample[p] = scores[p][idx]
		}
		out[h] = summarize(sample)
	}
	return out, nil
}

// candidate is one mechanism to score: the subgraph within diffusion reach
// of a biological process, or the residual over nodes no process reaches.
type candidate struct {
	graph *bel.Graph
	order []string
}

// candidates splits the prepared graph into the mechanism subgraphs the
// permutations score. Every surviving node lands in at least one candidate,
// so the result keys stay exactly the surviving node set; a graph without
// any process node scores as a single candidate.
func candidates(g *bel.Graph) []candidate {
	var processes []string
	for h, n := range g.Nodes {
		if n.Function == bel.FunctionBioProcess {
			processes = append(processes, h)
		}
	}
	sort.Strings(processes)

	if len(processes) == 0 {
		return []candidate{newCandidate(g)}
	}

	covered := make(map[string]struct{}, len(g.Nodes))
	out := make([]candidate, 0, len(processes)+1)
	for _, h := range processes {
		sub := g.InducedSubgraph(g.Neighborhood([]string{h}, diffusionRounds))
		out = append(out, newCandidate(sub))
		for hh := range sub.Nodes {
			covered[hh] = struct{}{}
		}
	}

	var rest []string
	for h := range g.Nodes {
		if _, ok := covered[h]; !ok {
			rest = append(rest, h)
		}
	}
	if len(rest) > 0 {
		out = append(out, newCandidate(g.InducedSubgraph(rest)))
	}
	return out
}

func newCandidate(sub *bel.Graph) candidate {
	order := make([]string, 0, len(sub.Nodes))
	for h := range sub.Nodes {
		order = append(order, h)
	}
	sort.Strings(order)
	return candidate{graph: sub, order: order}
}

// prepare strips unsupported namespaces and folds the graph down to genes so
// that the overlay keys line up with the omics symbols.
func (w Workflow) prepare(g *bel.Graph) (*bel.Graph, error) {
	current := g.Copy()
	for _, ns := range w.UnsupportedNamespaces {
		step := &pipeline.RemoveNamespace{Namespace: ns}
		next, err := step.Apply(g, current)
		if err != nil {
			return nil, fmt.Errorf("remove namespace %s: %w", ns, err)
		}
		current = next
	}
	for _, step := range []pipeline.Step{&pipeline.CollapseVariants{}, &pipeline.CollapseToGenes{}} {
		next, err := step.Apply(g, current)
		if err != nil {
			return nil, fmt.Errorf("prepare graph: %w", err)
		}
		current = next
	}
	return current, nil
}

// overlay assigns each gene node its measured value. Nodes without a
// measurement get the neutral zero.
func overlay(g *bel.Graph, order []string, values map[string]float64) []float64 {
	out := make([]float64, len(order))
	for idx, h := range order {
		n := g.Nodes[h]
		if v, ok := values[n.Name]; ok && n.Function == bel.FunctionGene {
			out[idx] = v
		}
	}
	return out
}

// diffuse runs the heat flow: every round, each node collects the heat of
// its direct upstream neighbors, signed by the relation.
func diffuse(g *bel.Graph, order []string, initial []float64) []float64 {
	index := make(map[string]int, len(order))
	for i, h := range order {
		index[h] = i
	}
	heatNow := make([]float64, len(initial))
	copy(heatNow, initial)
	next := make([]float64, len(initial))
	for range diffusionRounds {
		copy(next, heatNow)
		for _, e := range g.Edges {
			src, ok := index[e.Source]
			if !ok {
				continue
			}
			dst, ok := index[e.Target]
			if !ok {
				continue
			}
			next[dst] += relationSign(e.Relation) * heatNow[src]
		}
		heatNow, next = next, heatNow
	}
	return heatNow
}

func relationSign(relation string) float64 {
	switch relation {
	case "increases", "directlyIncreases", "positiveCorrelation":
		return 1
	case "decreases", "directlyDecreases", "negativeCorrelation":
		return -1
	default:
		return 0
	}
}

// summarize computes (min, max, median, mean, stddev) over the sample.
func summarize(sample []float64) [5]float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	n := len(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range sorted {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	return [5]float64{sorted[0], sorted[n-1], median, mean, math.Sqrt(variance)}
}
