package db

import (
	"context"
)

const createAssembly = `
INSERT INTO assemblies (hash)
VALUES ($1)
RETURNING id, hash, created_at
`

func (q *Queries) CreateAssembly(ctx context.Context, hash string) (Assembly, error) {
	row := q.db.QueryRow(ctx, createAssembly, hash)
	var a Assembly
	err := row.Scan(&a.ID, &a.Hash, &a.CreatedAt)
	return a, err
}

const getAssembly = `
SELECT id, hash, created_at FROM assemblies WHERE id = $1
`

func (q *Queries) GetAssembly(ctx context.Context, id int64) (Assembly, error) {
	row := q.db.QueryRow(ctx, getAssembly, id)
	var a Assembly
	err := row.Scan(&a.ID, &a.Hash, &a.CreatedAt)
	return a, err
}

const getAssemblyByHash = `
SELECT id, hash, created_at FROM assemblies WHERE hash = $1
`

func (q *Queries) GetAssemblyByHash(ctx context.Context, hash string) (Assembly, error) {
	row := q.db.QueryRow(ctx, getAssemblyByHash, hash)
	var a Assembly
	err := row.Scan(&a.ID, &a.Hash, &a.CreatedAt)
	return a, err
}

const addAssemblyNetwork = `
INSERT INTO assembly_networks (assembly_id, network_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type AddAssemblyNetworkParams struct {
	AssemblyID int64
	NetworkID  int64
}

func (q *Queries) AddAssemblyNetwork(ctx context.Context, arg AddAssemblyNetworkParams) error {
	_, err := q.db.Exec(ctx, addAssemblyNetwork, arg.AssemblyID, arg.NetworkID)
	return err
}

const listAssemblyNetworkIDs = `
SELECT network_id FROM assembly_networks WHERE assembly_id = $1 ORDER BY network_id
`

func (q *Queries) ListAssemblyNetworkIDs(ctx context.Context, assemblyID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listAssemblyNetworkIDs, assemblyID)
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
