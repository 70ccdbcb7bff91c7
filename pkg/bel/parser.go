package bel

import (
	"context"
	"fmt"
	"strings"
)

// ParseOptions mirror the flags recorded on a report row.
type ParseOptions struct {
	// CitationClearing resets evidence and annotations whenever a new
	// citation is set.
	CitationClearing bool
	// AllowNested permits object terms that are themselves statements.
	AllowNested bool
	// InferOrigin adds central dogma origin nodes after parsing.
	InferOrigin bool
}

// NamespaceResolver resolves a declared namespace resource to its set of
// valid names. A nil resolver or a nil name set disables name validation for
// that namespace. Resolution failures are reported as *ResourceError.
type NamespaceResolver interface {
	Resolve(ctx context.Context, keyword, url string) (map[string]struct{}, error)
}

// ProgressFunc receives line-by-line parse progress.
type ProgressFunc func(line, total int)

// ResourceError reports a failure to fetch an external namespace or
// annotation resource. It is transient from the uploader's point of view.
type ResourceError struct {
	Keyword string
	URL     string
	Err     error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("could not resolve resource %s at %s: %v", e.Keyword, e.URL, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// RedefinitionError reports a namespace or annotation keyword defined twice.
type RedefinitionError struct {
	Identifier string
	Line       int
}

func (e *RedefinitionError) Error() string {
	return fmt.Sprintf("%q redefined on line %d", e.Identifier, e.Line)
}

// SyntaxError is the catch-all parse failure, carrying the offending line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

var validRelations = map[string]struct{}{
	"increases":           {},
	"decreases":           {},
	"directlyIncreases":   {},
	"directlyDecreases":   {},
	"association":         {},
	"positiveCorrelation": {},
	"negativeCorrelation": {},
	"causesNoChange":      {},
	"regulates":           {},
	"isA":                 {},
	"partOf":              {},
	"hasComponent":        {},
	"biomarkerFor":        {},
	"prognosticBiomarkerFor": {},
}

var validFunctions = map[string]FunctionType{
	"p":                  FunctionProtein,
	"proteinAbundance":   FunctionProtein,
	"g":                  FunctionGene,
	"geneAbundance":      FunctionGene,
	"r":                  FunctionRNA,
	"rnaAbundance":       FunctionRNA,
	"m":                  FunctionMiRNA,
	"microRNAAbundance":  FunctionMiRNA,
	"a":                  FunctionAbundance,
	"abundance":          FunctionAbundance,
	"complex":            FunctionComplex,
	"complexAbundance":   FunctionComplex,
	"bp":                 FunctionBioProcess,
	"biologicalProcess":  FunctionBioProcess,
	"path":               FunctionPathology,
	"pathology":          FunctionPathology,
}

type parser struct {
	opts     ParseOptions
	resolver NamespaceResolver

	graph *Graph
	// names holds resolved valid names per namespace keyword; a nil set
	// means the namespace is declared but not validated.
	names map[string]map[string]struct{}

	citation    *Citation
	evidence    string
	annotations map[string]string
}

// Parse parses BEL source into a graph. The returned error is one of
// *ResourceError, *RedefinitionError or *SyntaxError.
func Parse(ctx context.Context, source string, opts ParseOptions, resolver NamespaceResolver, progress ProgressFunc) (*Graph, error) {
	p := &parser{
		opts:        opts,
		resolver:    resolver,
		graph:       NewGraph(),
		names:       make(map[string]map[string]struct{}),
		annotations: make(map[string]string),
	}

	lines := strings.Split(source, "\n")
	total := len(lines)
	for i, raw := range lines {
		lineNo := i + 1
		if progress != nil {
			progress(lineNo, total)
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.parseLine(ctx, line, lineNo); err != nil {
			return nil, err
		}
	}

	if opts.InferOrigin {
		InferCentralDogma(p.graph)
	}
	return p.graph, nil
}

func (p *parser) parseLine(ctx context.Context, line string, lineNo int) error {
	switch {
	case strings.HasPrefix(line, "SET DOCUMENT "):
		return p.parseDocument(line, lineNo)
	case strings.HasPrefix(line, "DEFINE NAMESPACE "):
		return p.parseNamespace(ctx, line, lineNo)
	case strings.HasPrefix(line, "DEFINE ANNOTATION "):
		return p.parseAnnotationDefinition(ctx, line, lineNo)
	case strings.HasPrefix(line, "UNSET "):
		return p.parseUnset(line, lineNo)
	case strings.HasPrefix(line, "SET "):
		return p.parseSet(line, lineNo)
	default:
		return p.parseStatement(line, lineNo)
	}
}

func (p *parser) parseDocument(line string, lineNo int) error {
	rest := strings.TrimPrefix(line, "SET DOCUMENT ")
	key, value, err := splitAssignment(rest, lineNo)
	if err != nil {
		return err
	}
	switch key {
	case "Name":
		p.graph.Name = value
	case "Version":
		p.graph.Version = value
	case "Description":
		p.graph.Description = value
	case "Authors":
		p.graph.Authors = value
	case "ContactInfo":
		p.graph.Contact = value
	case "Licences", "Licence", "License":
		p.graph.Licence = value
	case "Copyright":
		p.graph.Copyright = value
	default:
		// Unknown document keys are tolerated, matching lenient curation
		// tools that emit extra metadata.
	}
	return nil
}

func (p *parser) parseNamespace(ctx context.Context, line string, lineNo int) error {
	rest := strings.TrimPrefix(line, "DEFINE NAMESPACE ")
	keyword, url, err := splitResourceDefinition(rest, lineNo)
	if err != nil {
		return err
	}
	if _, exists := p.graph.Namespaces[keyword]; exists {
		return &RedefinitionError{Identifier: keyword, Line: lineNo}
	}
	p.graph.Namespaces[keyword] = url
	if p.resolver != nil {
		names, err := p.resolver.Resolve(ctx, keyword, url)
		if err != nil {
			return &ResourceError{Keyword: keyword, URL: url, Err: err}
		}
		p.names[keyword] = names
	}
	return nil
}

func (p *parser) parseAnnotationDefinition(ctx context.Context, line string, lineNo int) error {
	rest := strings.TrimPrefix(line, "DEFINE ANNOTATION ")
	if idx := strings.Index(rest, " AS LIST "); idx != -1 {
		keyword := strings.TrimSpace(rest[:idx])
		if _, exists := p.graph.Annotations[keyword]; exists {
			return &RedefinitionError{Identifier: keyword, Line: lineNo}
		}
		p.graph.Annotations[keyword] = "list"
		return nil
	}
	keyword, url, err := splitResourceDefinition(rest, lineNo)
	if err != nil {
		return err
	}
	if _, exists := p.graph.Annotations[keyword]; exists {
		return &RedefinitionError{Identifier: keyword, Line: lineNo}
	}
	p.graph.Annotations[keyword] = url
	if p.resolver != nil {
		if _, err := p.resolver.Resolve(ctx, keyword, url); err != nil {
			return &ResourceError{Keyword: keyword, URL: url, Err: err}
		}
	}
	return nil
}

func (p *parser) parseUnset(line string, lineNo int) error {
	key := strings.TrimSpace(strings.TrimPrefix(line, "UNSET "))
	switch key {
	case "ALL":
		p.citation = nil
		p.evidence = ""
		p.annotations = make(map[string]string)
	case "Citation":
		p.citation = nil
	case "Evidence", "SupportingText":
		p.evidence = ""
	default:
		delete(p.annotations, key)
	}
	return nil
}

func (p *parser) parseSet(line string, lineNo int) error {
	rest := strings.TrimPrefix(line, "SET ")
	key, value, err := splitAssignment(rest, lineNo)
	if err != nil {
		return err
	}
	switch key {
	case "Citation":
		fields, err := splitBraceList(value, lineNo)
		if err != nil {
			return err
		}
		cit := &Citation{}
		switch len(fields) {
		case 2:
			cit.Type, cit.Reference = fields[0], fields[1]
		case 3:
			cit.Type, cit.Name, cit.Reference = fields[0], fields[1], fields[2]
		default:
			return &SyntaxError{Line: lineNo, Msg: "citation needs 2 or 3 fields"}
		}
		p.citation = cit
		if p.opts.CitationClearing {
			p.evidence = ""
			p.annotations = make(map[string]string)
		}
	case "Evidence", "SupportingText":
		p.evidence = value
	default:
		if _, defined := p.graph.Annotations[key]; !defined {
			return &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("annotation %q is not defined", key)}
		}
		p.annotations[key] = value
	}
	return nil
}

func (p *parser) parseStatement(line string, lineNo int) error {
	subjectText, relation, objectText, err := splitStatement(line, lineNo)
	if err != nil {
		return err
	}
	if _, ok := validRelations[relation]; !ok {
		return &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("unknown relation %q", relation)}
	}
	if p.citation == nil {
		return &SyntaxError{Line: lineNo, Msg: "statement without a citation"}
	}

	subject, err := p.parseTerm(subjectText, lineNo)
	if err != nil {
		return err
	}

	if strings.HasPrefix(objectText, "(") && strings.HasSuffix(objectText, ")") && looksLikeStatement(objectText[1:len(objectText)-1]) {
		if !p.opts.AllowNested {
			return &SyntaxError{Line: lineNo, Msg: "nested statements are not allowed"}
		}
		inner := strings.TrimSpace(objectText[1 : len(objectText)-1])
		if err := p.parseStatement(inner, lineNo); err != nil {
			return err
		}
		innerSubjectText, _, _, err := splitStatement(inner, lineNo)
		if err != nil {
			return err
		}
		innerSubject, err := p.parseTerm(innerSubjectText, lineNo)
		if err != nil {
			return err
		}
		p.addEdge(subject, innerSubject, relation, lineNo)
		return nil
	}

	object, err := p.parseTerm(objectText, lineNo)
	if err != nil {
		return err
	}
	p.addEdge(subject, object, relation, lineNo)
	return nil
}

func (p *parser) addEdge(subject, object Node, relation string, lineNo int) {
	annotations := make(map[string]string, len(p.annotations))
	for k, v := range p.annotations {
		annotations[k] = v
	}
	var cit *Citation
	if p.citation != nil {
		c := *p.citation
		cit = &c
	}
	p.graph.AddEdge(subject, object, Edge{
		Relation:    relation,
		Evidence:    p.evidence,
		Citation:    cit,
		Annotations: annotations,
		Line:        lineNo,
	})
}

func (p *parser) parseTerm(text string, lineNo int) (Node, error) {
	open := strings.Index(text, "(")
	if open == -1 || !strings.HasSuffix(text, ")") {
		return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("malformed term %q", text)}
	}
	fn, ok := validFunctions[strings.TrimSpace(text[:open])]
	if !ok {
		return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("unknown function %q", text[:open])}
	}
	args := splitTopLevel(text[open+1:len(text)-1], ',')
	if len(args) == 0 {
		return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("empty term %q", text)}
	}

	first := strings.TrimSpace(args[0])
	colon := strings.Index(first, ":")
	if colon == -1 {
		return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("term %q has no namespace", text)}
	}
	namespace := strings.TrimSpace(first[:colon])
	name := unquote(strings.TrimSpace(first[colon+1:]))

	if _, declared := p.graph.Namespaces[namespace]; !declared {
		return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("namespace %q is not defined", namespace)}
	}
	if names := p.names[namespace]; names != nil {
		if _, ok := names[name]; !ok {
			return Node{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("%q is not in namespace %q", name, namespace)}
		}
	}

	node := Node{Function: fn, Namespace: namespace, Name: name}
	for _, arg := range args[1:] {
		node.Variants = append(node.Variants, strings.TrimSpace(arg))
	}
	return node, nil
}

// InferCentralDogma adds the originating RNA and gene for every protein and
// the originating gene for every RNA, linked by translatedTo/transcribedTo
// edges. Variants do not carry over to inferred origins.
func InferCentralDogma(g *Graph) {
	for _, n := range snapshotNodes(g) {
		switch n.Function {
		case FunctionProtein:
			rna := Node{Function: FunctionRNA, Namespace: n.Namespace, Name: n.Name}
			g.AddEdge(rna, n.Parent(), Edge{Relation: "translatedTo"})
			gene := Node{Function: FunctionGene, Namespace: n.Namespace, Name: n.Name}
			g.AddEdge(gene, rna, Edge{Relation: "transcribedTo"})
		case FunctionRNA, FunctionMiRNA:
			gene := Node{Function: FunctionGene, Namespace: n.Namespace, Name: n.Name}
			g.AddEdge(gene, n.Parent(), Edge{Relation: "transcribedTo"})
		}
	}
}

func snapshotNodes(g *Graph) []Node {
	nodes := make([]Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n)
	}
	return nodes
}

func splitAssignment(text string, lineNo int) (string, string, error) {
	idx := strings.Index(text, "=")
	if idx == -1 {
		return "", "", &SyntaxError{Line: lineNo, Msg: "expected assignment"}
	}
	key := strings.TrimSpace(text[:idx])
	value := strings.TrimSpace(text[idx+1:])
	if strings.HasPrefix(value, "{") {
		return key, value, nil
	}
	return key, unquote(value), nil
}

func splitResourceDefinition(text string, lineNo int) (string, string, error) {
	idx := strings.Index(text, " AS URL ")
	if idx == -1 {
		return "", "", &SyntaxError{Line: lineNo, Msg: "expected AS URL definition"}
	}
	keyword := strings.TrimSpace(text[:idx])
	url := unquote(strings.TrimSpace(text[idx+len(" AS URL "):]))
	if keyword == "" || url == "" {
		return "", "", &SyntaxError{Line: lineNo, Msg: "empty resource definition"}
	}
	return keyword, url, nil
}

func splitBraceList(value string, lineNo int) ([]string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return nil, &SyntaxError{Line: lineNo, Msg: "expected a brace list"}
	}
	parts := splitTopLevel(value[1:len(value)-1], ',')
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, unquote(strings.TrimSpace(part)))
	}
	return out, nil
}

// splitStatement breaks "subject relation object" at the top level, keeping
// parenthesized terms intact.
func splitStatement(line string, lineNo int) (string, string, string, error) {
	tokens := splitTopLevel(line, ' ')
	fields := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			fields = append(fields, t)
		}
	}
	if len(fields) < 3 {
		return "", "", "", &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("malformed statement %q", line)}
	}
	return fields[0], fields[1], strings.Join(fields[2:], " "), nil
}

func looksLikeStatement(text string) bool {
	fields := splitTopLevel(strings.TrimSpace(text), ' ')
	count := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			count++
		}
	}
	return count >= 3
}

// splitTopLevel splits on sep outside parentheses and double quotes.
func splitTopLevel(text string, sep rune) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i, r := range text {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '(' || r == '{':
			depth++
		case r == ')' || r == '}':
			depth--
		case r == sep && depth == 0:
			out = append(out, text[start:i])
			start = i + 1
		}
	}
	out = append(out, text[start:])
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// Placeholder metadata values from the document template shipped with
// curation tutorials. Uploads that still carry them are rejected.
const (
	PlaceholderName        = "Document Name Placeholder"
	PlaceholderDescription = "Document Description Placeholder"
)

// IsPlaceholder reports whether the parsed document still carries the
// boilerplate template metadata.
func IsPlaceholder(g *Graph) bool {
	return g.Name == PlaceholderName || g.Description == PlaceholderDescription
}
