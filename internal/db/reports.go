package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const createReport = `
INSERT INTO reports (user_id, source_name, source_key, source_hash, state, public, allow_nested, citation_clearing, infer_origin)
VALUES ($1, $2, $3, $4, 'queued', $5, $6, $7, $8)
RETURNING id, user_id, source_name, source_key, source_hash, state, error_message, network_id, summary,
          public, allow_nested, citation_clearing, infer_origin, started_at, finished_at, created_at
`

type CreateReportParams struct {
	UserID           string
	SourceName       string
	SourceKey        string
	SourceHash       string
	Public           bool
	AllowNested      bool
	CitationClearing bool
	InferOrigin      bool
}

func (q *Queries) CreateReport(ctx context.Context, arg CreateReportParams) (Report, error) {
	row := q.db.QueryRow(ctx, createReport,
		arg.UserID, arg.SourceName, arg.SourceKey, arg.SourceHash, arg.Public,
		arg.AllowNested, arg.CitationClearing, arg.InferOrigin)
	return scanReport(row)
}

const getReport = `
SELECT id, user_id, source_name, source_key, source_hash, state, error_message, network_id, summary,
       public, allow_nested, citation_clearing, infer_origin, started_at, finished_at, created_at
FROM reports WHERE id = $1
`

func (q *Queries) GetReport(ctx context.Context, id int64) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, getReport, id))
}

const listReportsForUser = `
SELECT id, user_id, source_name, source_key, source_hash, state, error_message, network_id, summary,
       public, allow_nested, citation_clearing, infer_origin, started_at, finished_at, created_at
FROM reports WHERE user_id = $1 ORDER BY id DESC
`

func (q *Queries) ListReportsForUser(ctx context.Context, userID string) ([]Report, error) {
	rows, err := q.db.Query(ctx, listReportsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// tryStartReport claims a queued report for parsing. The state guard makes
// the claim exclusive: a second worker gets no row back.
const tryStartReport = `
UPDATE reports
SET state = 'parsing', started_at = now(), error_message = NULL
WHERE id = $1 AND state = 'queued'
RETURNING id, user_id, source_name, source_key, source_hash, state, error_message, network_id, summary,
          public, allow_nested, citation_clearing, infer_origin, started_at, finished_at, created_at
`

func (q *Queries) TryStartReport(ctx context.Context, id int64) (Report, error) {
	return scanReport(q.db.QueryRow(ctx, tryStartReport, id))
}

const completeReport = `
UPDATE reports
SET state = 'completed', network_id = $2, summary = $3, finished_at = now()
WHERE id = $1 AND state = 'parsing'
`

type CompleteReportParams struct {
	ID        int64
	NetworkID pgtype.Int8
	Summary   []byte
}

func (q *Queries) CompleteReport(ctx context.Context, arg CompleteReportParams) error {
	_, err := q.db.Exec(ctx, completeReport, arg.ID, arg.NetworkID, arg.Summary)
	return err
}

const failReport = `
UPDATE reports
SET state = 'failed', error_message = $2, finished_at = now()
WHERE id = $1
`

type FailReportParams struct {
	ID           int64
	ErrorMessage pgtype.Text
}

func (q *Queries) FailReport(ctx context.Context, arg FailReportParams) error {
	_, err := q.db.Exec(ctx, failReport, arg.ID, arg.ErrorMessage)
	return err
}

const getNetworkSummary = `
SELECT summary FROM reports
WHERE network_id = $1 AND state = 'completed'
ORDER BY id DESC LIMIT 1
`

// GetNetworkSummary returns the parse-time summary of the report that
// produced the network.
func (q *Queries) GetNetworkSummary(ctx context.Context, networkID int64) ([]byte, error) {
	var summary []byte
	err := q.db.QueryRow(ctx, getNetworkSummary, networkID).Scan(&summary)
	return summary, err
}

// requeueReport puts a claimed or failed report back in line so a retried
// message can claim it again. Completed reports stay completed.
const requeueReport = `
UPDATE reports
SET state = 'queued', started_at = NULL
WHERE id = $1 AND state IN ('parsing', 'failed')
`

func (q *Queries) RequeueReport(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, requeueReport, id)
	return err
}

// resetStaleReports requeues reports whose worker died mid-parse. The
// interval guard keeps live parses untouched.
const resetStaleReports = `
UPDATE reports
SET state = 'queued', started_at = NULL
WHERE state = 'parsing' AND started_at < now() - $1::interval
RETURNING id
`

func (q *Queries) ResetStaleReports(ctx context.Context, olderThan string) ([]int64, error) {
	rows, err := q.db.Query(ctx, resetStaleReports, olderThan)
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

func scanReport(row pgx.Row) (Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.UserID, &r.SourceName, &r.SourceKey, &r.SourceHash, &r.State,
		&r.ErrorMessage, &r.NetworkID, &r.Summary, &r.Public, &r.AllowNested,
		&r.CitationClearing, &r.InferOrigin, &r.StartedAt, &r.FinishedAt, &r.CreatedAt)
	return r, err
}
