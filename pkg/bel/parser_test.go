package bel

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

const minimalHeader = `SET DOCUMENT Name = "Example"
SET DOCUMENT Version = "1.0"
DEFINE NAMESPACE HGNC AS URL "https://example.org/hgnc.belns"
DEFINE ANNOTATION Tissue AS LIST {"liver","brain"}
SET Citation = {"PubMed","Example paper","12345"}
SET Evidence = "Observed in cell culture"
`

type staticResolver struct {
	names map[string]map[string]struct{}
	err   error
}

func (r *staticResolver) Resolve(_ context.Context, keyword, _ string) (map[string]struct{}, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.names[keyword], nil
}

func TestParseMinimalDocument(t *testing.T) {
	src := minimalHeader + "p(HGNC:AKT1) increases p(HGNC:EGFR)\n"
	g, err := Parse(context.Background(), src, ParseOptions{}, nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if g.Name != "Example" || g.Version != "1.0" {
		t.Fatalf("metadata = %q/%q, want Example/1.0", g.Name, g.Version)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(g.Edges))
	}
	for _, e := range g.Edges {
		if e.Relation != "increases" {
			t.Fatalf("relation = %q, want increases", e.Relation)
		}
		if e.Citation == nil || e.Citation.Reference != "12345" {
			t.Fatalf("citation not carried onto edge: %+v", e.Citation)
		}
		if e.Evidence != "Observed in cell culture" {
			t.Fatalf("evidence = %q", e.Evidence)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		check func(t *testing.T, err error)
	}{
		{
			name: "NamespaceRedefinition",
			src: minimalHeader +
				"DEFINE NAMESPACE HGNC AS URL \"https://example.org/other.belns\"\n",
			check: func(t *testing.T, err error) {
				var redef *RedefinitionError
				if !errors.As(err, &redef) {
					t.Fatalf("err = %v, want RedefinitionError", err)
				}
				if redef.Identifier != "HGNC" || redef.Line != 7 {
					t.Fatalf("got %+v, want HGNC on line 7", redef)
				}
			},
		},
		{
			name: "StatementWithoutCitation",
			src: `SET DOCUMENT Name = "X"
SET DOCUMENT Version = "1"
DEFINE NAMESPACE HGNC AS URL "https://example.org/hgnc.belns"
p(HGNC:AKT1) increases p(HGNC:EGFR)
`,
			check: func(t *testing.T, err error) {
				var syn *SyntaxError
				if !errors.As(err, &syn) {
					t.Fatalf("err = %v, want SyntaxError", err)
				}
			},
		},
		{
			name: "UnknownRelation",
			src:  minimalHeader + "p(HGNC:AKT1) frobnicates p(HGNC:EGFR)\n",
			check: func(t *testing.T, err error) {
				var syn *SyntaxError
				if !errors.As(err, &syn) {
					t.Fatalf("err = %v, want SyntaxError", err)
				}
			},
		},
		{
			name: "UndefinedNamespace",
			src:  minimalHeader + "p(MGI:Akt1) increases p(HGNC:EGFR)\n",
			check: func(t *testing.T, err error) {
				var syn *SyntaxError
				if !errors.As(err, &syn) {
					t.Fatalf("err = %v, want SyntaxError", err)
				}
			},
		},
		{
			name: "UndefinedAnnotation",
			src:  minimalHeader + "SET CellLine = \"HeLa\"\n",
			check: func(t *testing.T, err error) {
				var syn *SyntaxError
				if !errors.As(err, &syn) {
					t.Fatalf("err = %v, want SyntaxError", err)
				}
			},
		},
		{
			name: "NestedNotAllowed",
			src:  minimalHeader + "p(HGNC:AKT1) increases (p(HGNC:EGFR) decreases p(HGNC:TP53))\n",
			check: func(t *testing.T, err error) {
				var syn *SyntaxError
				if !errors.As(err, &syn) {
					t.Fatalf("err = %v, want SyntaxError", err)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(context.Background(), tc.src, ParseOptions{}, nil, nil)
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			tc.check(t, err)
		})
	}
}

func TestParseResourceError(t *testing.T) {
	resolver := &staticResolver{err: fmt.Errorf("connection refused")}
	_, err := Parse(context.Background(), minimalHeader, ParseOptions{}, resolver, nil)
	var res *ResourceError
	if !errors.As(err, &res) {
		t.Fatalf("err = %v, want ResourceError", err)
	}
	if res.Keyword != "HGNC" {
		t.Fatalf("keyword = %q, want HGNC", res.Keyword)
	}
}

func TestParseNamespaceNameValidation(t *testing.T) {
	resolver := &staticResolver{names: map[string]map[string]struct{}{
		"HGNC": {"AKT1": {}, "EGFR": {}},
	}}

	src := minimalHeader + "p(HGNC:AKT1) increases p(HGNC:EGFR)\n"
	if _, err := Parse(context.Background(), src, ParseOptions{}, resolver, nil); err != nil {
		t.Fatalf("valid names rejected: %v", err)
	}

	bad := minimalHeader + "p(HGNC:NOTAGENE) increases p(HGNC:EGFR)\n"
	if _, err := Parse(context.Background(), bad, ParseOptions{}, resolver, nil); err == nil {
		t.Fatal("invalid name accepted")
	}
}

func TestParseNestedStatement(t *testing.T) {
	src := minimalHeader + "p(HGNC:AKT1) increases (p(HGNC:EGFR) decreases p(HGNC:TP53))\n"
	g, err := Parse(context.Background(), src, ParseOptions{AllowNested: true}, nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(g.Nodes))
	}
	if len(g.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(g.Edges))
	}
}

func TestCitationClearing(t *testing.T) {
	src := minimalHeader + `SET Tissue = "liver"
SET Citation = {"PubMed","99999"}
SET Evidence = "Second paper"
p(HGNC:AKT1) increases p(HGNC:EGFR)
`
	g, err := Parse(context.Background(), src, ParseOptions{CitationClearing: true}, nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for _, e := range g.Edges {
		if len(e.Annotations) != 0 {
			t.Fatalf("annotations survived citation clearing: %v", e.Annotations)
		}
		if e.Citation.Reference != "99999" {
			t.Fatalf("citation = %+v, want reference 99999", e.Citation)
		}
	}
}

func TestInferCentralDogma(t *testing.T) {
	src := minimalHeader + "p(HGNC:AKT1) increases p(HGNC:EGFR)\n"
	g, err := Parse(context.Background(), src, ParseOptions{InferOrigin: true}, nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	// 2 proteins + inferred 2 RNAs + 2 genes.
	if len(g.Nodes) != 6 {
		t.Fatalf("nodes = %d, want 6", len(g.Nodes))
	}
	relations := map[string]int{}
	for _, e := range g.Edges {
		relations[e.Relation]++
	}
	if relations["translatedTo"] != 2 || relations["transcribedTo"] != 2 {
		t.Fatalf("inferred relations = %v", relations)
	}
}

func TestIsPlaceholder(t *testing.T) {
	g := NewGraph()
	g.Name = PlaceholderName
	if !IsPlaceholder(g) {
		t.Fatal("placeholder name not detected")
	}
	g.Name = "Real document"
	if IsPlaceholder(g) {
		t.Fatal("real document flagged as placeholder")
	}
}
