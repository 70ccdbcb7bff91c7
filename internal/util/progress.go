package util

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bel-commons/bel-commons/internal/db"
)

// ReportProgress is the progress block returned with queued work while it
// is still being processed.
type ReportProgress struct {
	State             string `json:"state"`
	Percentage        int32  `json:"percentage"`
	EstimatedDuration *int64 `json:"estimated_duration_ms,omitempty"`
	TimeRemaining     *int64 `json:"time_remaining_ms,omitempty"`
}

// BuildReportProgress derives the progress of a report from its state and
// the throughput based duration estimate. A running parse is capped at 95
// percent; only a finished report shows 100.
func BuildReportProgress(report db.Report, estimatedMs float64, now time.Time) ReportProgress {
	return buildProgress(report.State, db.ReportStateParsing, report.StartedAt, estimatedMs, now)
}

// BuildExperimentProgress is the experiment counterpart, with running as
// the active state.
func BuildExperimentProgress(experiment db.Experiment, estimatedMs float64, now time.Time) ReportProgress {
	return buildProgress(experiment.State, db.ExperimentStateRunning, experiment.StartedAt, estimatedMs, now)
}

func buildProgress(state, activeState string, startedAt pgtype.Timestamptz, estimatedMs float64, now time.Time) ReportProgress {
	out := ReportProgress{State: state}

	switch state {
	case db.ReportStateQueued:
		out.Percentage = 0
	case activeState:
		out.Percentage = 5
		if estimatedMs > 0 && startedAt.Valid {
			total := int64(estimatedMs)
			out.EstimatedDuration = &total

			elapsed := now.Sub(startedAt.Time).Milliseconds()
			pct := int32(float64(elapsed) / estimatedMs * 100)
			if pct > 95 {
				pct = 95
			}
			if pct > out.Percentage {
				out.Percentage = pct
			}
			if remaining := total - elapsed; remaining > 0 {
				out.TimeRemaining = &remaining
			}
		}
	case db.ReportStateCompleted, db.ReportStateFailed:
		out.Percentage = 100
	}

	return out
}
