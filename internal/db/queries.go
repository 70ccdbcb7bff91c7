package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const createQuery = `
INSERT INTO queries (parent_id, assembly_id, user_id, seeds, pipeline)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, parent_id, assembly_id, user_id, seeds, pipeline, created_at
`

type CreateQueryParams struct {
	ParentID   pgtype.Int8
	AssemblyID int64
	UserID     pgtype.Text
	Seeds      []byte
	Pipeline   []byte
}

func (q *Queries) CreateQuery(ctx context.Context, arg CreateQueryParams) (Query, error) {
	row := q.db.QueryRow(ctx, createQuery,
		arg.ParentID, arg.AssemblyID, arg.UserID, arg.Seeds, arg.Pipeline)
	return scanQuery(row)
}

const getQuery = `
SELECT id, parent_id, assembly_id, user_id, seeds, pipeline, created_at
FROM queries WHERE id = $1
`

func (q *Queries) GetQuery(ctx context.Context, id int64) (Query, error) {
	return scanQuery(q.db.QueryRow(ctx, getQuery, id))
}

const listQueriesForUser = `
SELECT id, parent_id, assembly_id, user_id, seeds, pipeline, created_at
FROM queries WHERE user_id = $1 ORDER BY id DESC
`

func (q *Queries) ListQueriesForUser(ctx context.Context, userID pgtype.Text) ([]Query, error) {
	rows, err := q.db.Query(ctx, listQueriesForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Query
	for rows.Next() {
		item, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanQuery(row pgx.Row) (Query, error) {
	var item Query
	err := row.Scan(&item.ID, &item.ParentID, &item.AssemblyID, &item.UserID,
		&item.Seeds, &item.Pipeline, &item.CreatedAt)
	return item, err
}
