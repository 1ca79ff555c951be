// Package postgres provides the Postgres catalog backend. Catalog rows go
// through database/sql with the pgx driver; result rows are bulk-loaded with
// the COPY protocol when the pooled connection is a pgx connection.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib" // registers pgx as a database/sql driver

	"popcatalog/internal/entitymodel/sqlbundle"
	"popcatalog/internal/infra/persistence/sqlcatalog"
	"popcatalog/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.CatalogBackend = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/popcatalog?sslmode=disable"

	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	errNotPgx = errors.New("driver connection is not pgx")
)

var dialect = sqlcatalog.Dialect{
	Name:       "postgres",
	Numbered:   true,
	IsConflict: isUniqueViolation,
}

// Store is a CatalogBackend over a Postgres database.
type Store struct {
	*sqlcatalog.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and applies the catalog DDL.
func NewStore(ctx context.Context, dsn string, batchSize int) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlcatalog.ApplyDDL(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlcatalog.New(db, dialect, batchSize)}, nil
}

// InsertRows copies rows into table in BatchSize chunks. Connections that are
// not pgx fall back to row-by-row inserts.
func (s *Store) InsertRows(ctx context.Context, table domain.ResultTable, rows []domain.ResultRow) (int64, error) {
	if err := sqlcatalog.CheckTable(table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	conn, err := s.DB().Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	var copied int64
	err = conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		var err error
		copied, err = copyRows(ctx, pc.Conn(), table, rows, s.BatchSize())
		return err
	})
	_ = conn.Close()
	if errors.Is(err, errNotPgx) {
		return s.Store.InsertRows(ctx, table, rows)
	}
	if err != nil {
		return copied, fmt.Errorf("copy %s rows: %w", table, err)
	}
	return copied, nil
}

func copyRows(ctx context.Context, conn *pgx.Conn, table domain.ResultTable, rows []domain.ResultRow, batchSize int) (int64, error) {
	var total int64
	cols := table.Columns()
	for start := 0; start < len(rows); start += batchSize {
		chunk := rows[start:min(start+batchSize, len(rows))]
		n, err := conn.CopyFrom(ctx, pgx.Identifier{string(table)}, cols,
			pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
				return table.Values(chunk[i]), nil
			}))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
