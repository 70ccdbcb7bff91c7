package timing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bel-commons/bel-commons/internal/db"
)

// Stat kinds recorded by the workers.
const (
	StatBELParse   = "bel_parse"
	StatExperiment = "experiment"
)

func AddProcessingTime(
	ctx context.Context,
	kind string,
	inputSize int64,
	durationMs int64,
	conn *pgxpool.Pool,
) error {
	q := db.New(conn)

	return q.AddProcessTime(ctx, db.AddProcessTimeParams{
		Kind:       kind,
		InputSize:  inputSize,
		DurationMs: durationMs,
	})
}

// PredictProcessingTime estimates the duration in milliseconds for the
// given input size. Zero means no history to estimate from.
func PredictProcessingTime(ctx context.Context, kind string, inputSize int64, conn *pgxpool.Pool) (float64, error) {
	q := db.New(conn)

	estimate, err := q.PredictProcessTime(ctx, db.PredictProcessTimeParams{
		Kind:      kind,
		InputSize: inputSize,
	})
	if err != nil {
		return 0, err
	}
	if !estimate.Valid {
		return 0, nil
	}
	return estimate.Float64, nil
}

// AverageProcessingTime is the recent mean duration in milliseconds for the
// kind, regardless of input size. Zero means no history.
func AverageProcessingTime(ctx context.Context, kind string, conn *pgxpool.Pool) (float64, error) {
	q := db.New(conn)

	avg, err := q.AvgProcessTime(ctx, kind)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}
