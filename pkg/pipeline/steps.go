package pipeline

import (
	"github.com/bel-commons/bel-commons/pkg/bel"
)

const (
	StepOpCollapseToGenes    = "collapse_to_genes"
	StepOpCollapseVariants   = "collapse_variants"
	StepOpRemovePathologies  = "remove_pathologies"
	StepOpRemoveNamespace    = "remove_namespace"
	StepOpRemoveIsolated     = "remove_isolated_nodes"
	StepOpExpandNeighborhood = "expand_neighborhood"
	StepOpInferCentralDogma  = "infer_central_dogma"
	StepOpPruneLeaves        = "prune_leaves"
)

// CollapseToGenes folds proteins, RNAs and miRNAs onto the gene with the
// same namespace and name. Variants are dropped in the process.
type CollapseToGenes struct{}

func (*CollapseToGenes) Name() string { return StepOpCollapseToGenes }

func (*CollapseToGenes) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	for {
		collapsed := false
		for h, n := range out.Nodes {
			switch n.Function {
			case bel.FunctionProtein, bel.FunctionRNA, bel.FunctionMiRNA:
			default:
				continue
			}
			gene := bel.Node{Function: bel.FunctionGene, Namespace: n.Namespace, Name: n.Name}
			out.CollapseNode(h, gene)
			collapsed = true
			break
		}
		if !collapsed {
			return out, nil
		}
	}
}

// CollapseVariants folds every variant node onto its parent.
type CollapseVariants struct{}

func (*CollapseVariants) Name() string { return StepOpCollapseVariants }

func (*CollapseVariants) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	for {
		collapsed := false
		for h, n := range out.Nodes {
			if len(n.Variants) == 0 {
				continue
			}
			out.CollapseNode(h, n.Parent())
			collapsed = true
			break
		}
		if !collapsed {
			return out, nil
		}
	}
}

// RemovePathologies drops pathology nodes and their edges.
type RemovePathologies struct{}

func (*RemovePathologies) Name() string { return StepOpRemovePathologies }

func (*RemovePathologies) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	for h, n := range current.Nodes {
		if n.Function == bel.FunctionPathology {
			out.RemoveNode(h)
		}
	}
	return out, nil
}

// RemoveNamespace drops every node declared in the given namespace.
type RemoveNamespace struct {
	Namespace string `json:"namespace"`
}

func (s *RemoveNamespace) Name() string { return StepOpRemoveNamespace }

func (s *RemoveNamespace) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	for h, n := range current.Nodes {
		if n.Namespace == s.Namespace {
			out.RemoveNode(h)
		}
	}
	return out, nil
}

// RemoveIsolated drops nodes with no edges.
type RemoveIsolated struct{}

func (*RemoveIsolated) Name() string { return StepOpRemoveIsolated }

func (*RemoveIsolated) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	connected := make(map[string]struct{}, len(current.Nodes))
	for _, e := range current.Edges {
		connected[e.Source] = struct{}{}
		connected[e.Target] = struct{}{}
	}
	out := current.Copy()
	for h := range current.Nodes {
		if _, ok := connected[h]; !ok {
			delete(out.Nodes, h)
		}
	}
	return out, nil
}

// ExpandNeighborhood grows the working graph by Hops undirected hops into
// the universe, then induces the subgraph over the grown node set. A zero
// hop count means one hop.
type ExpandNeighborhood struct {
	Hops int `json:"hops,omitempty"`
}

func (s *ExpandNeighborhood) Name() string { return StepOpExpandNeighborhood }

func (s *ExpandNeighborhood) Apply(universe, current *bel.Graph) (*bel.Graph, error) {
	hops := s.Hops
	if hops <= 0 {
		hops = 1
	}
	seeds := make([]string, 0, len(current.Nodes))
	for h := range current.Nodes {
		seeds = append(seeds, h)
	}
	return universe.InducedSubgraph(universe.Neighborhood(seeds, hops)), nil
}

// InferCentralDogma adds the gene and RNA origins of every protein, RNA and
// miRNA node together with the transcription and translation edges.
type InferCentralDogma struct{}

func (*InferCentralDogma) Name() string { return StepOpInferCentralDogma }

func (*InferCentralDogma) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	bel.InferCentralDogma(out)
	return out, nil
}

// PruneLeaves repeatedly removes nodes with degree one or zero until no such
// node remains, keeping only the cyclic core of the graph.
type PruneLeaves struct{}

func (*PruneLeaves) Name() string { return StepOpPruneLeaves }

func (*PruneLeaves) Apply(_, current *bel.Graph) (*bel.Graph, error) {
	out := current.Copy()
	for {
		pruned := false
		for h := range out.Nodes {
			if out.Degree(h) <= 1 {
				out.RemoveNode(h)
				pruned = true
			}
		}
		if !pruned {
			return out, nil
		}
	}
}
