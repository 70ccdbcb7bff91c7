package util

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bel-commons/bel-commons/internal/db"
)

func TestBuildReportProgress(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	started := pgtype.Timestamptz{Time: now.Add(-30 * time.Second), Valid: true}

	tests := []struct {
		name        string
		report      db.Report
		estimatedMs float64
		wantPct     int32
	}{
		{
			name:    "Queued",
			report:  db.Report{State: db.ReportStateQueued},
			wantPct: 0,
		},
		{
			name:        "ParsingHalfway",
			report:      db.Report{State: db.ReportStateParsing, StartedAt: started},
			estimatedMs: 60_000,
			wantPct:     50,
		},
		{
			name:        "ParsingOverEstimateCapped",
			report:      db.Report{State: db.ReportStateParsing, StartedAt: started},
			estimatedMs: 10_000,
			wantPct:     95,
		},
		{
			name:    "ParsingNoEstimate",
			report:  db.Report{State: db.ReportStateParsing},
			wantPct: 5,
		},
		{
			name:    "Completed",
			report:  db.Report{State: db.ReportStateCompleted},
			wantPct: 100,
		},
		{
			name:    "Failed",
			report:  db.Report{State: db.ReportStateFailed},
			wantPct: 100,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BuildReportProgress(tc.report, tc.estimatedMs, now)
			if got.Percentage != tc.wantPct {
				t.Fatalf("percentage = %d, want %d", got.Percentage, tc.wantPct)
			}
		})
	}
}

func TestBuildReportProgressTimeRemaining(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	report := db.Report{
		State:     db.ReportStateParsing,
		StartedAt: pgtype.Timestamptz{Time: now.Add(-10 * time.Second), Valid: true},
	}
	got := BuildReportProgress(report, 60_000, now)
	if got.TimeRemaining == nil {
		t.Fatal("no time remaining on a running parse")
	}
	if *got.TimeRemaining != 50_000 {
		t.Fatalf("time remaining = %d, want 50000", *got.TimeRemaining)
	}
	if got.EstimatedDuration == nil || *got.EstimatedDuration != 60_000 {
		t.Fatal("estimated duration not carried through")
	}
}
