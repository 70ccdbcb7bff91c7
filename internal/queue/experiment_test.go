package queue

import (
	"strings"
	"testing"
)

func TestParseOmicTable(t *testing.T) {
	table := strings.Join([]string{
		"gene,log2fc,pvalue",
		"TP53,1.5,0.01",
		"MAPT,-0.75,0.2",
		",3.0,0.5",
		"BRCA1,not-a-number,0.9",
		"EGFR, 2.25 ,0.04",
	}, "\n")

	values, err := parseOmicTable([]byte(table), "gene", "log2fc")
	if err != nil {
		t.Fatalf("parseOmicTable: %v", err)
	}

	want := map[string]float64{
		"TP53": 1.5,
		"MAPT": -0.75,
		"EGFR": 2.25,
	}
	if len(values) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(values), len(want), values)
	}
	for gene, v := range want {
		if got, ok := values[gene]; !ok || got != v {
			t.Errorf("values[%q] = %v, %v; want %v", gene, got, ok, v)
		}
	}
}

func TestParseOmicTableErrors(t *testing.T) {
	tests := []struct {
		name       string
		table      string
		geneColumn string
		dataColumn string
	}{
		{
			name:       "missing gene column",
			table:      "symbol,log2fc\nTP53,1.5",
			geneColumn: "gene",
			dataColumn: "log2fc",
		},
		{
			name:       "missing value column",
			table:      "gene,fold\nTP53,1.5",
			geneColumn: "gene",
			dataColumn: "log2fc",
		},
		{
			name:       "no usable rows",
			table:      "gene,log2fc\n,1.5\nTP53,abc",
			geneColumn: "gene",
			dataColumn: "log2fc",
		},
		{
			name:       "empty table",
			table:      "",
			geneColumn: "gene",
			dataColumn: "log2fc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseOmicTable([]byte(tt.table), tt.geneColumn, tt.dataColumn); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
