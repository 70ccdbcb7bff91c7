package pipeline

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/bel-commons/bel-commons/pkg/bel"
)

const (
	SeedOpNodes      = "seed.nodes"
	SeedOpNeighbors  = "seed.neighbors"
	SeedOpAnnotation = "seed.annotation"
	SeedOpAuthors    = "seed.authors"
	SeedOpCitations  = "seed.citations"
	SeedOpSample     = "seed.sample"
)

// SeedNodes selects exactly the listed node hashes that exist in the graph.
type SeedNodes struct {
	Hashes []string `json:"hashes"`
}

func (s *SeedNodes) Name() string { return SeedOpNodes }
func (s *SeedNodes) Or() bool     { return false }

func (s *SeedNodes) Select(g *bel.Graph) []string {
	out := make([]string, 0, len(s.Hashes))
	for _, h := range s.Hashes {
		if _, ok := g.Nodes[h]; ok {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// SeedNeighbors selects the listed nodes plus everything within Hops
// undirected hops of them. A zero hop count means one hop.
type SeedNeighbors struct {
	Hashes []string `json:"hashes"`
	Hops   int      `json:"hops,omitempty"`
}

func (s *SeedNeighbors) Name() string { return SeedOpNeighbors }
func (s *SeedNeighbors) Or() bool     { return false }

func (s *SeedNeighbors) Select(g *bel.Graph) []string {
	hops := s.Hops
	if hops <= 0 {
		hops = 1
	}
	present := make([]string, 0, len(s.Hashes))
	for _, h := range s.Hashes {
		if _, ok := g.Nodes[h]; ok {
			present = append(present, h)
		}
	}
	return g.Neighborhood(present, hops)
}

// SeedAnnotation selects nodes incident to edges annotated with Key set to
// any of Values. Union controls how the selection composes with the seeds
// before it.
type SeedAnnotation struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
	Union  bool     `json:"union,omitempty"`
}

func (s *SeedAnnotation) Name() string { return SeedOpAnnotation }
func (s *SeedAnnotation) Or() bool     { return s.Union }

func (s *SeedAnnotation) Select(g *bel.Graph) []string {
	want := make(map[string]struct{}, len(s.Values))
	for _, v := range s.Values {
		want[v] = struct{}{}
	}
	selected := make(map[string]struct{})
	for _, e := range g.Edges {
		v, ok := e.Annotations[s.Key]
		if !ok {
			continue
		}
		if _, ok := want[v]; !ok {
			continue
		}
		selected[e.Source] = struct{}{}
		selected[e.Target] = struct{}{}
	}
	return sortedKeys(selected)
}

// SeedAuthors selects nodes incident to edges curated from any of the given
// authors. Matching is case insensitive.
type SeedAuthors struct {
	Authors []string `json:"authors"`
}

func (s *SeedAuthors) Name() string { return SeedOpAuthors }
func (s *SeedAuthors) Or() bool     { return false }

func (s *SeedAuthors) Select(g *bel.Graph) []string {
	want := make(map[string]struct{}, len(s.Authors))
	for _, a := range s.Authors {
		want[strings.ToLower(a)] = struct{}{}
	}
	selected := make(map[string]struct{})
	for _, e := range g.Edges {
		if e.Citation == nil {
			continue
		}
		for _, a := range e.Citation.Authors {
			if _, ok := want[strings.ToLower(a)]; ok {
				selected[e.Source] = struct{}{}
				selected[e.Target] = struct{}{}
				break
			}
		}
	}
	return sortedKeys(selected)
}

// SeedCitations selects nodes incident to edges curated from any of the
// given citation references.
type SeedCitations struct {
	References []string `json:"references"`
}

func (s *SeedCitations) Name() string { return SeedOpCitations }
func (s *SeedCitations) Or() bool     { return false }

func (s *SeedCitations) Select(g *bel.Graph) []string {
	want := make(map[string]struct{}, len(s.References))
	for _, r := range s.References {
		want[r] = struct{}{}
	}
	selected := make(map[string]struct{})
	for _, e := range g.Edges {
		if e.Citation == nil {
			continue
		}
		if _, ok := want[e.Citation.Reference]; !ok {
			continue
		}
		selected[e.Source] = struct{}{}
		selected[e.Target] = struct{}{}
	}
	return sortedKeys(selected)
}

// SeedSample selects a deterministic random sample of Count nodes. The same
// seed over the same graph always yields the same selection, so re-running a
// stored query stays reproducible.
type SeedSample struct {
	Count int   `json:"count"`
	Seed  int64 `json:"seed"`
}

func (s *SeedSample) Name() string { return SeedOpSample }
func (s *SeedSample) Or() bool     { return false }

func (s *SeedSample) Select(g *bel.Graph) []string {
	all := make([]string, 0, len(g.Nodes))
	for h := range g.Nodes {
		all = append(all, h)
	}
	sort.Strings(all)
	if s.Count >= len(all) {
		return all
	}
	rng := rand.New(rand.NewSource(s.Seed))
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:s.Count]
	sort.Strings(picked)
	return picked
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
