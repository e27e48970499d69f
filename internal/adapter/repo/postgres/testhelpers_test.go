package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row against a canned scan function. Shared across
// this package's *_test.go files so each doesn't redefine it.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// fakeRows implements pgx.Rows by replaying a fixed set of scan functions.
type fakeRows struct {
	scans []func(dest ...any) error
	i     int
	err   error
}

func (r *fakeRows) Close()                                      {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { return r.i < len(r.scans) }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Scan(dest ...any) error {
	fn := r.scans[r.i]
	r.i++
	return fn(dest...)
}

// fakePgxPool implements postgres.PgxPool for tests.
type fakePgxPool struct {
	execErr   error
	execTag   pgconn.CommandTag
	row       pgx.Row
	rows      pgx.Rows
	queryErr  error
	lastQuery string
	lastArgs  []any
}

func (p *fakePgxPool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.lastQuery, p.lastArgs = sql, args
	return p.execTag, p.execErr
}

func (p *fakePgxPool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.lastQuery, p.lastArgs = sql, args
	return p.row
}

func (p *fakePgxPool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.lastQuery, p.lastArgs = sql, args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func (p *fakePgxPool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
