// Package db is the hand maintained query layer over Postgres. It follows
// the conn -> Queries -> WithTx shape so call sites can run single queries
// on a pool connection or group them in a transaction.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// New returns a Queries bound to the given connection.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries carries every query method. One instance per connection or
// transaction.
type Queries struct {
	db DBTX
}

// WithTx returns a Queries bound to the transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
