package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOmic = `
INSERT INTO omics (user_id, source_name, source_key, gene_column, data_column, description, public)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, source_name, source_key, gene_column, data_column, description, public, created_at
`

type CreateOmicParams struct {
	UserID      string
	SourceName  string
	SourceKey   string
	GeneColumn  string
	DataColumn  string
	Description pgtype.Text
	Public      bool
}

func (q *Queries) CreateOmic(ctx context.Context, arg CreateOmicParams) (Omic, error) {
	row := q.db.QueryRow(ctx, createOmic,
		arg.UserID, arg.SourceName, arg.SourceKey, arg.GeneColumn, arg.DataColumn,
		arg.Description, arg.Public)
	return scanOmic(row)
}

const getOmic = `
SELECT id, user_id, source_name, source_key, gene_column, data_column, description, public, created_at
FROM omics WHERE id = $1
`

func (q *Queries) GetOmic(ctx context.Context, id int64) (Omic, error) {
	return scanOmic(q.db.QueryRow(ctx, getOmic, id))
}

const listOmicsVisibleTo = `
SELECT id, user_id, source_name, source_key, gene_column, data_column, description, public, created_at
FROM omics WHERE public OR user_id = $1 ORDER BY id DESC
`

func (q *Queries) ListOmicsVisibleTo(ctx context.Context, userID string) ([]Omic, error) {
	rows, err := q.db.Query(ctx, listOmicsVisibleTo, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Omic
	for rows.Next() {
		o, err := scanOmic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Omic rows are immutable after creation except for visibility.
const setOmicPublic = `
UPDATE omics SET public = $2 WHERE id = $1
`

type SetOmicPublicParams struct {
	ID     int64
	Public bool
}

func (q *Queries) SetOmicPublic(ctx context.Context, arg SetOmicPublicParams) error {
	_, err := q.db.Exec(ctx, setOmicPublic, arg.ID, arg.Public)
	return err
}

const deleteOmic = `
DELETE FROM omics WHERE id = $1
`

func (q *Queries) DeleteOmic(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteOmic, id)
	return err
}

func scanOmic(row pgx.Row) (Omic, error) {
	var o Omic
	err := row.Scan(&o.ID, &o.UserID, &o.SourceName, &o.SourceKey,
		&o.GeneColumn, &o.DataColumn, &o.Description, &o.Public, &o.CreatedAt)
	return o, err
}
