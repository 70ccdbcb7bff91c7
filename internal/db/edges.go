package db

import (
	"context"
)

const upsertEdgeVote = `
INSERT INTO edge_votes (edge_key, user_id, agreed)
VALUES ($1, $2, $3)
ON CONFLICT (edge_key, user_id) DO UPDATE SET agreed = EXCLUDED.agreed, created_at = now()
`

type UpsertEdgeVoteParams struct {
	EdgeKey string
	UserID  string
	Agreed  bool
}

// UpsertEdgeVote records a curation vote. A user has one vote per edge and
// voting again overwrites it.
func (q *Queries) UpsertEdgeVote(ctx context.Context, arg UpsertEdgeVoteParams) error {
	_, err := q.db.Exec(ctx, upsertEdgeVote, arg.EdgeKey, arg.UserID, arg.Agreed)
	return err
}

const countEdgeVotes = `
SELECT count(*) FILTER (WHERE agreed), count(*) FILTER (WHERE NOT agreed)
FROM edge_votes WHERE edge_key = $1
`

type CountEdgeVotesRow struct {
	Agreed    int64
	Disagreed int64
}

func (q *Queries) CountEdgeVotes(ctx context.Context, edgeKey string) (CountEdgeVotesRow, error) {
	row := q.db.QueryRow(ctx, countEdgeVotes, edgeKey)
	var out CountEdgeVotesRow
	err := row.Scan(&out.Agreed, &out.Disagreed)
	return out, err
}

const createEdgeComment = `
INSERT INTO edge_comments (edge_key, user_id, comment)
VALUES ($1, $2, $3)
RETURNING id, edge_key, user_id, comment, created_at
`

type CreateEdgeCommentParams struct {
	EdgeKey string
	UserID  string
	Comment string
}

func (q *Queries) CreateEdgeComment(ctx context.Context, arg CreateEdgeCommentParams) (EdgeComment, error) {
	row := q.db.QueryRow(ctx, createEdgeComment, arg.EdgeKey, arg.UserID, arg.Comment)
	var c EdgeComment
	err := row.Scan(&c.ID, &c.EdgeKey, &c.UserID, &c.Comment, &c.CreatedAt)
	return c, err
}

const listEdgeComments = `
SELECT id, edge_key, user_id, comment, created_at
FROM edge_comments WHERE edge_key = $1 ORDER BY id
`

func (q *Queries) ListEdgeComments(ctx context.Context, edgeKey string) ([]EdgeComment, error) {
	rows, err := q.db.Query(ctx, listEdgeComments, edgeKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EdgeComment
	for rows.Next() {
		var c EdgeComment
		if err := rows.Scan(&c.ID, &c.EdgeKey, &c.UserID, &c.Comment, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
