package enrich

import "testing"

func TestParseResourceValues(t *testing.T) {
	body := `[Namespace]
Keyword=HGNC
NameString=HGNC Human Gene Names

# comment line
[Author]
NameString=Example

[Values]
AKT1|GRP
EGFR|GRP
TP53|GRP
`
	names := ParseResourceValues(body)
	if len(names) != 3 {
		t.Fatalf("parsed %d names, want 3", len(names))
	}
	for _, want := range []string{"AKT1", "EGFR", "TP53"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing name %q", want)
		}
	}
	if _, ok := names["Keyword=HGNC"]; ok {
		t.Fatal("header line leaked into the value set")
	}
}

func TestParseResourceValuesNoValuesSection(t *testing.T) {
	names := ParseResourceValues("[Namespace]\nKeyword=X\n")
	if len(names) != 0 {
		t.Fatalf("parsed %d names from a file without values", len(names))
	}
}
