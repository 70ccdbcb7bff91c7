package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertNetwork = `
INSERT INTO networks (name, version, content_hash, graph, public, uploader_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, version, content_hash, graph, public, uploader_id, created_at
`

type InsertNetworkParams struct {
	Name        string
	Version     string
	ContentHash string
	Graph       []byte
	Public      bool
	UploaderID  pgtype.Text
}

func (q *Queries) InsertNetwork(ctx context.Context, arg InsertNetworkParams) (Network, error) {
	row := q.db.QueryRow(ctx, insertNetwork,
		arg.Name, arg.Version, arg.ContentHash, arg.Graph, arg.Public, arg.UploaderID)
	return scanNetwork(row)
}

const getNetwork = `
SELECT id, name, version, content_hash, graph, public, uploader_id, created_at
FROM networks WHERE id = $1
`

func (q *Queries) GetNetwork(ctx context.Context, id int64) (Network, error) {
	return scanNetwork(q.db.QueryRow(ctx, getNetwork, id))
}

const getNetworkByHash = `
SELECT id, name, version, content_hash, graph, public, uploader_id, created_at
FROM networks WHERE content_hash = $1
`

func (q *Queries) GetNetworkByHash(ctx context.Context, contentHash string) (Network, error) {
	return scanNetwork(q.db.QueryRow(ctx, getNetworkByHash, contentHash))
}

const getNetworkByNameVersion = `
SELECT id, name, version, content_hash, graph, public, uploader_id, created_at
FROM networks WHERE name = $1 AND version = $2
`

type GetNetworkByNameVersionParams struct {
	Name    string
	Version string
}

func (q *Queries) GetNetworkByNameVersion(ctx context.Context, arg GetNetworkByNameVersionParams) (Network, error) {
	return scanNetwork(q.db.QueryRow(ctx, getNetworkByNameVersion, arg.Name, arg.Version))
}

const deleteNetwork = `
DELETE FROM networks WHERE id = $1
`

func (q *Queries) DeleteNetwork(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteNetwork, id)
	return err
}

const setNetworkPublic = `
UPDATE networks SET public = $2 WHERE id = $1
`

type SetNetworkPublicParams struct {
	ID     int64
	Public bool
}

func (q *Queries) SetNetworkPublic(ctx context.Context, arg SetNetworkPublicParams) error {
	_, err := q.db.Exec(ctx, setNetworkPublic, arg.ID, arg.Public)
	return err
}

const shareNetworkWithUser = `
INSERT INTO network_users (network_id, user_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type ShareNetworkWithUserParams struct {
	NetworkID int64
	UserID    string
}

func (q *Queries) ShareNetworkWithUser(ctx context.Context, arg ShareNetworkWithUserParams) error {
	_, err := q.db.Exec(ctx, shareNetworkWithUser, arg.NetworkID, arg.UserID)
	return err
}

const unshareNetworkWithUser = `
DELETE FROM network_users WHERE network_id = $1 AND user_id = $2
`

type UnshareNetworkWithUserParams struct {
	NetworkID int64
	UserID    string
}

func (q *Queries) UnshareNetworkWithUser(ctx context.Context, arg UnshareNetworkWithUserParams) error {
	_, err := q.db.Exec(ctx, unshareNetworkWithUser, arg.NetworkID, arg.UserID)
	return err
}

// listVisibleNetworks is the rights oracle in SQL: a network is visible when
// it is shared with the user directly, reachable through a project the user
// belongs to, owned through an upload, or public.
const listVisibleNetworks = `
SELECT DISTINCT n.id, n.name, n.version, n.content_hash, n.graph, n.public, n.uploader_id, n.created_at
FROM networks n
LEFT JOIN network_users nu ON nu.network_id = n.id AND nu.user_id = $1
LEFT JOIN project_networks pn ON pn.network_id = n.id
LEFT JOIN project_users pu ON pu.project_id = pn.project_id AND pu.user_id = $1
WHERE n.public
   OR n.uploader_id = $1
   OR nu.user_id IS NOT NULL
   OR pu.user_id IS NOT NULL
ORDER BY n.id
`

func (q *Queries) ListVisibleNetworks(ctx context.Context, userID string) ([]Network, error) {
	rows, err := q.db.Query(ctx, listVisibleNetworks, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNetworks(rows)
}

const networkSharedWith = `
SELECT EXISTS (
    SELECT 1 FROM network_users WHERE network_id = $1 AND user_id = $2
)
`

type NetworkSharedWithParams struct {
	NetworkID int64
	UserID    string
}

func (q *Queries) NetworkSharedWith(ctx context.Context, arg NetworkSharedWithParams) (bool, error) {
	row := q.db.QueryRow(ctx, networkSharedWith, arg.NetworkID, arg.UserID)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

const networkInUserProject = `
SELECT EXISTS (
    SELECT 1
    FROM project_networks pn
    JOIN project_users pu ON pu.project_id = pn.project_id
    WHERE pn.network_id = $1 AND pu.user_id = $2
)
`

type NetworkInUserProjectParams struct {
	NetworkID int64
	UserID    string
}

func (q *Queries) NetworkInUserProject(ctx context.Context, arg NetworkInUserProjectParams) (bool, error) {
	row := q.db.QueryRow(ctx, networkInUserProject, arg.NetworkID, arg.UserID)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

const listProjectNetworks = `
SELECT n.id, n.name, n.version, n.content_hash, n.graph, n.public, n.uploader_id, n.created_at
FROM networks n
JOIN project_networks pn ON pn.network_id = n.id
WHERE pn.project_id = $1
ORDER BY n.id
`

func (q *Queries) ListProjectNetworks(ctx context.Context, projectID int64) ([]Network, error) {
	rows, err := q.db.Query(ctx, listProjectNetworks, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNetworks(rows)
}

const listAllNetworks = `
SELECT id, name, version, content_hash, graph, public, uploader_id, created_at
FROM networks ORDER BY id
`

// ListAllNetworks backs the admin short circuit.
func (q *Queries) ListAllNetworks(ctx context.Context) ([]Network, error) {
	rows, err := q.db.Query(ctx, listAllNetworks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNetworks(rows)
}

func scanNetwork(row pgx.Row) (Network, error) {
	var n Network
	err := row.Scan(&n.ID, &n.Name, &n.Version, &n.ContentHash, &n.Graph,
		&n.Public, &n.UploaderID, &n.CreatedAt)
	return n, err
}

func collectNetworks(rows pgx.Rows) ([]Network, error) {
	var out []Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
