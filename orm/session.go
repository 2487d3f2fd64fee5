package orm

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
)

// Row is the single-row scan surface shared by both engines.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the result-set surface shared by both engines.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close()
	Err() error
}

// Session executes statements inside one transaction scope. A session is
// only valid within the function the manager hands it to; the manager
// commits when that function returns nil and rolls back otherwise.
type Session interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a statement returning a result set. The caller must close it.
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// QueryRow runs a statement expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// pgxSession adapts a pgx transaction to the Session interface.
type pgxSession struct {
	tx pgx.Tx
}

var _ Session = pgxSession{}

func (s pgxSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s pgxSession) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows: rows}, nil
}

func (s pgxSession) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.tx.QueryRow(ctx, query, args...)
}

type pgxRows struct {
	rows pgx.Rows
}

func (r pgxRows) Next() bool             { return r.rows.Next() }
func (r pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r pgxRows) Close()                 { r.rows.Close() }
func (r pgxRows) Err() error             { return r.rows.Err() }

func (r pgxRows) Columns() ([]string, error) {
	fds := r.rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return cols, nil
}

// sqlSession adapts a database/sql transaction to the Session interface.
type sqlSession struct {
	tx *sql.Tx
}

var _ Session = sqlSession{}

func (s sqlSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s sqlSession) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows: rows}, nil
}

func (s sqlSession) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.tx.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool                 { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r sqlRows) Close()                     { _ = r.rows.Close() }
func (r sqlRows) Err() error                 { return r.rows.Err() }
func (r sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
