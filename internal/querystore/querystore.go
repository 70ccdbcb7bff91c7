// Package querystore backs the query builder with the Postgres layer.
package querystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/query"
)

// Store implements the query builder's persistence surface over db.Queries.
type Store struct {
	q      *db.Queries
	userID pgtype.Text
}

// New returns a store over the given connection.
func New(conn db.DBTX) *Store {
	return &Store{q: db.New(conn)}
}

// WithUser returns a copy that attributes created queries to the user.
func (s *Store) WithUser(userID string) *Store {
	return &Store{q: s.q, userID: pgtype.Text{String: userID, Valid: userID != ""}}
}

func (s *Store) GetAssembly(ctx context.Context, id int64) (query.Assembly, error) {
	row, err := s.q.GetAssembly(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return query.Assembly{}, query.ErrAssemblyNotFound
	}
	if err != nil {
		return query.Assembly{}, err
	}
	ids, err := s.q.ListAssemblyNetworkIDs(ctx, id)
	if err != nil {
		return query.Assembly{}, err
	}
	return query.Assembly{ID: row.ID, Hash: row.Hash, NetworkIDs: ids}, nil
}

func (s *Store) GetAssemblyByHash(ctx context.Context, hash string) (query.Assembly, error) {
	row, err := s.q.GetAssemblyByHash(ctx, hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return query.Assembly{}, query.ErrAssemblyNotFound
	}
	if err != nil {
		return query.Assembly{}, err
	}
	ids, err := s.q.ListAssemblyNetworkIDs(ctx, row.ID)
	if err != nil {
		return query.Assembly{}, err
	}
	return query.Assembly{ID: row.ID, Hash: row.Hash, NetworkIDs: ids}, nil
}

func (s *Store) CreateAssembly(ctx context.Context, hash string, networkIDs []int64) (query.Assembly, error) {
	row, err := s.q.CreateAssembly(ctx, hash)
	if err != nil {
		return query.Assembly{}, err
	}
	for _, id := range networkIDs {
		if err := s.q.AddAssemblyNetwork(ctx, db.AddAssemblyNetworkParams{
			AssemblyID: row.ID,
			NetworkID:  id,
		}); err != nil {
			return query.Assembly{}, err
		}
	}
	return query.Assembly{ID: row.ID, Hash: row.Hash, NetworkIDs: networkIDs}, nil
}

func (s *Store) CreateQuery(ctx context.Context, parentID, assemblyID int64, seeds, pipeline []byte) (query.Query, error) {
	row, err := s.q.CreateQuery(ctx, db.CreateQueryParams{
		ParentID:   pgtype.Int8{Int64: parentID, Valid: parentID != 0},
		AssemblyID: assemblyID,
		UserID:     s.userID,
		Seeds:      seeds,
		Pipeline:   pipeline,
	})
	if err != nil {
		return query.Query{}, err
	}
	return toQuery(row), nil
}

func (s *Store) GetQuery(ctx context.Context, id int64) (query.Query, error) {
	row, err := s.q.GetQuery(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return query.Query{}, query.ErrQueryNotFound
	}
	if err != nil {
		return query.Query{}, err
	}
	return toQuery(row), nil
}

func (s *Store) GetNetworkGraph(ctx context.Context, networkID int64) (*bel.Graph, error) {
	row, err := s.q.GetNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}
	g := bel.NewGraph()
	if err := json.Unmarshal(row.Graph, g); err != nil {
		return nil, fmt.Errorf("decode network %d: %w", networkID, err)
	}
	return g, nil
}

func toQuery(row db.Query) query.Query {
	out := query.Query{
		ID:         row.ID,
		AssemblyID: row.AssemblyID,
		Seeds:      row.Seeds,
		Pipeline:   row.Pipeline,
	}
	if row.ParentID.Valid {
		out.ParentID = row.ParentID.Int64
	}
	if row.CreatedAt.Valid {
		out.CreatedAt = row.CreatedAt.Time
	}
	return out
}
