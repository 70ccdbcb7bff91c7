package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const addProcessTime = `
INSERT INTO process_stats (kind, input_size, duration_ms)
VALUES ($1, $2, $3)
`

type AddProcessTimeParams struct {
	Kind       string
	InputSize  int64
	DurationMs int64
}

// AddProcessTime records how long one pipeline run took for its input size,
// feeding the duration estimate shown on queued work.
func (q *Queries) AddProcessTime(ctx context.Context, arg AddProcessTimeParams) error {
	_, err := q.db.Exec(ctx, addProcessTime, arg.Kind, arg.InputSize, arg.DurationMs)
	return err
}

// predictProcessTime scales the recent per-byte throughput to the new input
// size. Only the last 50 runs count so the estimate tracks current hardware.
const predictProcessTime = `
SELECT avg(duration_ms::float8 / GREATEST(input_size, 1)) * $2
FROM (
    SELECT duration_ms, input_size
    FROM process_stats
    WHERE kind = $1
    ORDER BY id DESC
    LIMIT 50
) recent
`

type PredictProcessTimeParams struct {
	Kind      string
	InputSize int64
}

func (q *Queries) PredictProcessTime(ctx context.Context, arg PredictProcessTimeParams) (pgtype.Float8, error) {
	row := q.db.QueryRow(ctx, predictProcessTime, arg.Kind, arg.InputSize)
	var out pgtype.Float8
	err := row.Scan(&out)
	return out, err
}

// avgProcessTime is the plain recent average, for callers that do not know
// the input size of the run they are waiting on.
const avgProcessTime = `
SELECT avg(duration_ms::float8)
FROM (
    SELECT duration_ms
    FROM process_stats
    WHERE kind = $1
    ORDER BY id DESC
    LIMIT 50
) recent
`

func (q *Queries) AvgProcessTime(ctx context.Context, kind string) (pgtype.Float8, error) {
	row := q.db.QueryRow(ctx, avgProcessTime, kind)
	var out pgtype.Float8
	err := row.Scan(&out)
	return out, err
}
