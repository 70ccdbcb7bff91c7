package db

import (
	"context"
)

const upsertUser = `
INSERT INTO users (id, email, name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
RETURNING id, email, name, role, created_at
`

type UpsertUserParams struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// UpsertUser provisions the user row for a JWT subject on first contact and
// refreshes the profile fields afterwards. The role is never downgraded by
// a token.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRow(ctx, upsertUser, arg.ID, arg.Email, arg.Name, arg.Role)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	return u, err
}

const getUser = `
SELECT id, email, name, role, created_at FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	return u, err
}

const listAdmins = `
SELECT id, email, name, role, created_at FROM users WHERE role = 'admin'
`

func (q *Queries) ListAdmins(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listAdmins)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const setUserRole = `
UPDATE users SET role = $2 WHERE id = $1
`

func (q *Queries) SetUserRole(ctx context.Context, id, role string) error {
	_, err := q.db.Exec(ctx, setUserRole, id, role)
	return err
}
