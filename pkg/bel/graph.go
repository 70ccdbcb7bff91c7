package bel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// FunctionType is the BEL function of a node (protein, gene, ...).
type FunctionType string

const (
	FunctionProtein    FunctionType = "p"
	FunctionGene       FunctionType = "g"
	FunctionRNA        FunctionType = "r"
	FunctionMiRNA      FunctionType = "m"
	FunctionAbundance  FunctionType = "a"
	FunctionComplex    FunctionType = "complex"
	FunctionBioProcess FunctionType = "bp"
	FunctionPathology  FunctionType = "path"
)

// Node is a single BEL term: a function applied to a namespaced name,
// optionally carrying variants (mutations, modifications).
type Node struct {
	Function  FunctionType `json:"function"`
	Namespace string       `json:"namespace"`
	Name      string       `json:"name"`
	Variants  []string     `json:"variants,omitempty"`
}

// Canonical returns the node in canonical BEL-like text form. Variants are
// sorted so that the form is stable regardless of declaration order.
func (n Node) Canonical() string {
	if len(n.Variants) == 0 {
		return fmt.Sprintf("%s(%s:%s)", n.Function, n.Namespace, n.Name)
	}
	variants := make([]string, len(n.Variants))
	copy(variants, n.Variants)
	sort.Strings(variants)
	return fmt.Sprintf("%s(%s:%s, %s)", n.Function, n.Namespace, n.Name, strings.Join(variants, ", "))
}

// Hash returns a stable content hash of the canonical node form.
func (n Node) Hash() string {
	sum := sha256.Sum256([]byte(n.Canonical()))
	return hex.EncodeToString(sum[:16])
}

// Parent returns the node without variants (the parent gene/protein).
func (n Node) Parent() Node {
	return Node{Function: n.Function, Namespace: n.Namespace, Name: n.Name}
}

// Citation identifies the publication an edge was curated from.
type Citation struct {
	Type      string   `json:"type"`
	Name      string   `json:"name,omitempty"`
	Reference string   `json:"reference"`
	Authors   []string `json:"authors,omitempty"`
	Date      string   `json:"date,omitempty"`
}

// Edge is a directed, qualified relation between two nodes, identified by
// their hashes. The same node pair may carry multiple edges with different
// relations or provenance.
type Edge struct {
	Source      string            `json:"source"`
	Target      string            `json:"target"`
	Relation    string            `json:"relation"`
	Evidence    string            `json:"evidence,omitempty"`
	Citation    *Citation         `json:"citation,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Line        int               `json:"line,omitempty"`
}

// Key returns a stable identity for the edge including its provenance, so
// the same statement curated from two papers yields two edges.
func (e Edge) Key() string {
	var b strings.Builder
	b.WriteString(e.Source)
	b.WriteString("|")
	b.WriteString(e.Relation)
	b.WriteString("|")
	b.WriteString(e.Target)
	b.WriteString("|")
	b.WriteString(e.Evidence)
	if e.Citation != nil {
		b.WriteString("|")
		b.WriteString(e.Citation.Type)
		b.WriteString(":")
		b.WriteString(e.Citation.Reference)
	}
	keys := make([]string, 0, len(e.Annotations))
	for k := range e.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(e.Annotations[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// Graph is an in-memory BEL network: document metadata plus nodes keyed by
// hash and edges keyed by their provenance-qualified key.
type Graph struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Authors     string `json:"authors,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Licence     string `json:"licence,omitempty"`
	Copyright   string `json:"copyright,omitempty"`

	// Namespaces and Annotations map declared keyword -> resource URL.
	Namespaces  map[string]string `json:"namespaces,omitempty"`
	Annotations map[string]string `json:"annotation_definitions,omitempty"`

	Nodes map[string]Node `json:"nodes"`
	Edges map[string]Edge `json:"edges"`
}

// NewGraph returns an empty graph with initialized containers.
func NewGraph() *Graph {
	return &Graph{
		Namespaces:  make(map[string]string),
		Annotations: make(map[string]string),
		Nodes:       make(map[string]Node),
		Edges:       make(map[string]Edge),
	}
}

// AddNode inserts the node and returns its hash.
func (g *Graph) AddNode(n Node) string {
	h := n.Hash()
	g.Nodes[h] = n
	return h
}

// AddEdge inserts the edge and both endpoint nodes.
func (g *Graph) AddEdge(source, target Node, e Edge) string {
	e.Source = g.AddNode(source)
	e.Target = g.AddNode(target)
	k := e.Key()
	g.Edges[k] = e
	return k
}

// Copy returns a deep copy of the graph.
func (g *Graph) Copy() *Graph {
	out := NewGraph()
	out.Name = g.Name
	out.Version = g.Version
	out.Description = g.Description
	out.Authors = g.Authors
	out.Contact = g.Contact
	out.Licence = g.Licence
	out.Copyright = g.Copyright
	for k, v := range g.Namespaces {
		out.Namespaces[k] = v
	}
	for k, v := range g.Annotations {
		out.Annotations[k] = v
	}
	for h, n := range g.Nodes {
		out.Nodes[h] = n
	}
	for k, e := range g.Edges {
		out.Edges[k] = e
	}
	return out
}

// Union merges other into g in place. Node and edge identity is content
// based, so merging the same network twice is a no-op.
func (g *Graph) Union(other *Graph) {
	if other == nil {
		return
	}
	for k, v := range other.Namespaces {
		if _, ok := g.Namespaces[k]; !ok {
			g.Namespaces[k] = v
		}
	}
	for k, v := range other.Annotations {
		if _, ok := g.Annotations[k]; !ok {
			g.Annotations[k] = v
		}
	}
	for h, n := range other.Nodes {
		g.Nodes[h] = n
	}
	for k, e := range other.Edges {
		g.Edges[k] = e
	}
}

// UnionAll unions the given graphs into a fresh graph. The result carries no
// document metadata of its own.
func UnionAll(graphs []*Graph) *Graph {
	out := NewGraph()
	for _, g := range graphs {
		out.Union(g)
	}
	return out
}

// InducedSubgraph returns the subgraph over the given node hashes: the nodes
// that exist in g plus every edge whose both endpoints are in the set.
func (g *Graph) InducedSubgraph(hashes []string) *Graph {
	keep := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		keep[h] = struct{}{}
	}
	out := NewGraph()
	out.Name = g.Name
	out.Version = g.Version
	for h := range keep {
		if n, ok := g.Nodes[h]; ok {
			out.Nodes[h] = n
		}
	}
	for k, e := range g.Edges {
		if _, ok := out.Nodes[e.Source]; !ok {
			continue
		}
		if _, ok := out.Nodes[e.Target]; !ok {
			continue
		}
		out.Edges[k] = e
	}
	return out
}

// Neighborhood returns the set of node hashes reachable from seeds within
// the given number of hops, ignoring edge direction. The seeds themselves
// are included whether or not they exist in g.
func (g *Graph) Neighborhood(seeds []string, hops int) []string {
	frontier := make(map[string]struct{}, len(seeds))
	visited := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		frontier[s] = struct{}{}
		visited[s] = struct{}{}
	}
	adj := g.adjacency()
	for range hops {
		next := make(map[string]struct{})
		for h := range frontier {
			for _, nb := range adj[h] {
				if _, seen := visited[nb]; !seen {
					visited[nb] = struct{}{}
					next[nb] = struct{}{}
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	out := make([]string, 0, len(visited))
	for h := range visited {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	return adj
}

// Degree returns the undirected degree of a node.
func (g *Graph) Degree(hash string) int {
	d := 0
	for _, e := range g.Edges {
		if e.Source == hash || e.Target == hash {
			d++
		}
	}
	return d
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(hash string) {
	delete(g.Nodes, hash)
	for k, e := range g.Edges {
		if e.Source == hash || e.Target == hash {
			delete(g.Edges, k)
		}
	}
}

// CollapseNode rewires every edge of old onto replacement and removes old.
// Self loops produced by the rewrite are dropped.
func (g *Graph) CollapseNode(old string, replacement Node) {
	rh := g.AddNode(replacement)
	if rh == old {
		return
	}
	for k, e := range g.Edges {
		changed := false
		if e.Source == old {
			e.Source = rh
			changed = true
		}
		if e.Target == old {
			e.Target = rh
			changed = true
		}
		if !changed {
			continue
		}
		delete(g.Edges, k)
		if e.Source == e.Target {
			continue
		}
		g.Edges[e.Key()] = e
	}
	delete(g.Nodes, old)
}

// WeaklyConnectedComponents returns the number of connected components when
// edge direction is ignored. Isolated nodes count as components.
func (g *Graph) WeaklyConnectedComponents() int {
	adj := g.adjacency()
	visited := make(map[string]struct{}, len(g.Nodes))
	components := 0
	for h := range g.Nodes {
		if _, ok := visited[h]; ok {
			continue
		}
		components++
		stack := []string{h}
		visited[h] = struct{}{}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range adj[cur] {
				if _, ok := visited[nb]; ok {
					continue
				}
				if _, exists := g.Nodes[nb]; !exists {
					continue
				}
				visited[nb] = struct{}{}
				stack = append(stack, nb)
			}
		}
	}
	return components
}

// Hash returns a content hash over the node and edge sets, independent of
// map iteration order. Two graphs with the same content hash are considered
// the same network for duplicate detection.
func (g *Graph) Hash() string {
	keys := make([]string, 0, len(g.Nodes)+len(g.Edges))
	for h := range g.Nodes {
		keys = append(keys, "n:"+h)
	}
	for k := range g.Edges {
		keys = append(keys, "e:"+k)
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "\n")))
	return hex.EncodeToString(sum[:])
}

// Summary holds the calculated statistics stored on a completed report.
type Summary struct {
	Nodes      int            `json:"nodes"`
	Edges      int            `json:"edges"`
	Citations  int            `json:"citations"`
	Authors    int            `json:"authors"`
	Density    float64        `json:"density"`
	Components int            `json:"components"`
	Functions  map[string]int `json:"functions"`
	Relations  map[string]int `json:"relations"`
}

// Summarize computes the report summary statistics for the graph.
func (g *Graph) Summarize() Summary {
	s := Summary{
		Nodes:      len(g.Nodes),
		Edges:      len(g.Edges),
		Components: g.WeaklyConnectedComponents(),
		Functions:  make(map[string]int),
		Relations:  make(map[string]int),
	}
	citations := make(map[string]struct{})
	authors := make(map[string]struct{})
	for _, n := range g.Nodes {
		s.Functions[string(n.Function)]++
	}
	for _, e := range g.Edges {
		s.Relations[e.Relation]++
		if e.Citation != nil {
			citations[e.Citation.Type+":"+e.Citation.Reference] = struct{}{}
			for _, a := range e.Citation.Authors {
				authors[a] = struct{}{}
			}
		}
	}
	s.Citations = len(citations)
	s.Authors = len(authors)
	if n := len(g.Nodes); n > 1 {
		s.Density = float64(len(g.Edges)) / float64(n*(n-1))
	}
	return s
}
