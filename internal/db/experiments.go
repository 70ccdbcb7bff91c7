package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const createExperiment = `
INSERT INTO experiments (user_id, query_id, omic_id, permutations, state)
VALUES ($1, $2, $3, $4, 'queued')
RETURNING id, user_id, query_id, omic_id, permutations, state, error_message, result,
          started_at, finished_at, created_at
`

type CreateExperimentParams struct {
	UserID       string
	QueryID      int64
	OmicID       int64
	Permutations int32
}

func (q *Queries) CreateExperiment(ctx context.Context, arg CreateExperimentParams) (Experiment, error) {
	row := q.db.QueryRow(ctx, createExperiment,
		arg.UserID, arg.QueryID, arg.OmicID, arg.Permutations)
	return scanExperiment(row)
}

const getExperiment = `
SELECT id, user_id, query_id, omic_id, permutations, state, error_message, result,
       started_at, finished_at, created_at
FROM experiments WHERE id = $1
`

func (q *Queries) GetExperiment(ctx context.Context, id int64) (Experiment, error) {
	return scanExperiment(q.db.QueryRow(ctx, getExperiment, id))
}

const listExperimentsForUser = `
SELECT id, user_id, query_id, omic_id, permutations, state, error_message, result,
       started_at, finished_at, created_at
FROM experiments WHERE user_id = $1 ORDER BY id DESC
`

func (q *Queries) ListExperimentsForUser(ctx context.Context, userID string) ([]Experiment, error) {
	rows, err := q.db.Query(ctx, listExperimentsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const tryStartExperiment = `
UPDATE experiments
SET state = 'running', started_at = now(), error_message = NULL
WHERE id = $1 AND state = 'queued'
RETURNING id, user_id, query_id, omic_id, permutations, state, error_message, result,
          started_at, finished_at, created_at
`

func (q *Queries) TryStartExperiment(ctx context.Context, id int64) (Experiment, error) {
	return scanExperiment(q.db.QueryRow(ctx, tryStartExperiment, id))
}

const completeExperiment = `
UPDATE experiments
SET state = 'completed', result = $2, finished_at = now()
WHERE id = $1 AND state = 'running'
`

type CompleteExperimentParams struct {
	ID     int64
	Result []byte
}

func (q *Queries) CompleteExperiment(ctx context.Context, arg CompleteExperimentParams) error {
	_, err := q.db.Exec(ctx, completeExperiment, arg.ID, arg.Result)
	return err
}

const failExperiment = `
UPDATE experiments
SET state = 'failed', error_message = $2, finished_at = now()
WHERE id = $1
`

type FailExperimentParams struct {
	ID           int64
	ErrorMessage pgtype.Text
}

func (q *Queries) FailExperiment(ctx context.Context, arg FailExperimentParams) error {
	_, err := q.db.Exec(ctx, failExperiment, arg.ID, arg.ErrorMessage)
	return err
}

const requeueExperiment = `
UPDATE experiments
SET state = 'queued', started_at = NULL
WHERE id = $1 AND state IN ('running', 'failed')
`

func (q *Queries) RequeueExperiment(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, requeueExperiment, id)
	return err
}

const resetStaleExperiments = `
UPDATE experiments
SET state = 'queued', started_at = NULL
WHERE state = 'running' AND started_at < now() - $1::interval
RETURNING id
`

func (q *Queries) ResetStaleExperiments(ctx context.Context, olderThan string) ([]int64, error) {
	rows, err := q.db.Query(ctx, resetStaleExperiments, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanExperiment(row pgx.Row) (Experiment, error) {
	var e Experiment
	err := row.Scan(&e.ID, &e.UserID, &e.QueryID, &e.OmicID, &e.Permutations,
		&e.State, &e.ErrorMessage, &e.Result, &e.StartedAt, &e.FinishedAt, &e.CreatedAt)
	return e, err
}
