package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createProject = `
INSERT INTO projects (name, description)
VALUES ($1, $2)
RETURNING id, name, description, created_at
`

type CreateProjectParams struct {
	Name        string
	Description pgtype.Text
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error) {
	row := q.db.QueryRow(ctx, createProject, arg.Name, arg.Description)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	return p, err
}

const getProject = `
SELECT id, name, description, created_at FROM projects WHERE id = $1
`

func (q *Queries) GetProject(ctx context.Context, id int64) (Project, error) {
	row := q.db.QueryRow(ctx, getProject, id)
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	return p, err
}

const deleteProject = `
DELETE FROM projects WHERE id = $1
`

func (q *Queries) DeleteProject(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteProject, id)
	return err
}

const listProjectsForUser = `
SELECT p.id, p.name, p.description, p.created_at
FROM projects p
JOIN project_users pu ON pu.project_id = p.id
WHERE pu.user_id = $1
ORDER BY p.id
`

func (q *Queries) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := q.db.Query(ctx, listProjectsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const addProjectUser = `
INSERT INTO project_users (project_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role
`

type AddProjectUserParams struct {
	ProjectID int64
	UserID    string
	Role      string
}

func (q *Queries) AddProjectUser(ctx context.Context, arg AddProjectUserParams) error {
	_, err := q.db.Exec(ctx, addProjectUser, arg.ProjectID, arg.UserID, arg.Role)
	return err
}

const removeProjectUser = `
DELETE FROM project_users WHERE project_id = $1 AND user_id = $2
`

type RemoveProjectUserParams struct {
	ProjectID int64
	UserID    string
}

func (q *Queries) RemoveProjectUser(ctx context.Context, arg RemoveProjectUserParams) error {
	_, err := q.db.Exec(ctx, removeProjectUser, arg.ProjectID, arg.UserID)
	return err
}

const getProjectRole = `
SELECT role FROM project_users WHERE project_id = $1 AND user_id = $2
`

type GetProjectRoleParams struct {
	ProjectID int64
	UserID    string
}

func (q *Queries) GetProjectRole(ctx context.Context, arg GetProjectRoleParams) (string, error) {
	row := q.db.QueryRow(ctx, getProjectRole, arg.ProjectID, arg.UserID)
	var role string
	err := row.Scan(&role)
	return role, err
}

const listProjectUsers = `
SELECT project_id, user_id, role FROM project_users WHERE project_id = $1 ORDER BY user_id
`

func (q *Queries) ListProjectUsers(ctx context.Context, projectID int64) ([]ProjectUser, error) {
	rows, err := q.db.Query(ctx, listProjectUsers, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProjectUser
	for rows.Next() {
		var pu ProjectUser
		if err := rows.Scan(&pu.ProjectID, &pu.UserID, &pu.Role); err != nil {
			return nil, err
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}

const addProjectNetwork = `
INSERT INTO project_networks (project_id, network_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type AddProjectNetworkParams struct {
	ProjectID int64
	NetworkID int64
}

func (q *Queries) AddProjectNetwork(ctx context.Context, arg AddProjectNetworkParams) error {
	_, err := q.db.Exec(ctx, addProjectNetwork, arg.ProjectID, arg.NetworkID)
	return err
}

const removeProjectNetwork = `
DELETE FROM project_networks WHERE project_id = $1 AND network_id = $2
`

type RemoveProjectNetworkParams struct {
	ProjectID int64
	NetworkID int64
}

func (q *Queries) RemoveProjectNetwork(ctx context.Context, arg RemoveProjectNetworkParams) error {
	_, err := q.db.Exec(ctx, removeProjectNetwork, arg.ProjectID, arg.NetworkID)
	return err
}
