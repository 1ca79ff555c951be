// Package sqlite provides the embedded SQLite catalog backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"popcatalog/internal/entitymodel/sqlbundle"
	"popcatalog/internal/infra/persistence/sqlcatalog"
	"popcatalog/pkg/domain"
)

const defaultPath = "popcatalog.db"

var dialect = sqlcatalog.Dialect{
	Name:           "sqlite",
	IsConflict:     isUniqueViolation,
	PrepareInserts: true,
}

// Store is a CatalogBackend over a single SQLite file.
type Store struct {
	*sqlcatalog.Store
	path string
}

var _ domain.CatalogBackend = (*Store)(nil)

// NewStore opens (creating when needed) the SQLite file at path and applies
// the catalog DDL.
func NewStore(ctx context.Context, path string, batchSize int) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers; sqlite would otherwise report busy.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := sqlcatalog.ApplyDDL(ctx, db, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlcatalog.New(db, dialect, batchSize), path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
