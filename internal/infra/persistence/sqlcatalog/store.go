// Package sqlcatalog implements domain.CatalogBackend over database/sql. The
// sqlite and postgres backends wrap it with their driver, DDL bundle and
// dialect quirks.
package sqlcatalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"popcatalog/internal/entitymodel/sqlbundle"
	"popcatalog/pkg/domain"
)

// DefaultBatchSize is the number of result rows written per transaction.
const DefaultBatchSize = 5000

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// Numbered renders bind parameters as $1..$n instead of ?.
	Numbered bool
	// IsConflict reports whether err is a uniqueness violation.
	IsConflict func(error) bool
	// PrepareInserts prepares the bulk insert statement once per batch.
	PrepareInserts bool
}

// Store is a CatalogBackend over an open *sql.DB.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	now       func() time.Time
}

var _ domain.CatalogBackend = (*Store)(nil)

// New wraps db. A non-positive batchSize selects DefaultBatchSize.
func New(db *sql.DB, dialect Dialect, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if dialect.IsConflict == nil {
		dialect.IsConflict = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect, batchSize: batchSize, now: time.Now}
}

// ApplyDDL executes every statement of a DDL bundle.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// BatchSize returns the configured bulk batch size.
func (s *Store) BatchSize() int { return s.batchSize }

func (s *Store) Driver() string { return s.dialect.Name }

func (s *Store) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	entryColumns = "id, family, class, title, caption, revision, created_at, modified_at, read_only, published, text_en, text_local, first_year, last_year, estimation_id, codec"
	writeColumns = "family, class, title, caption, revision, created_at, modified_at, read_only, published, text_en, text_local, first_year, last_year, estimation_id, codec, parameters"
	setColumns   = "class = ?, title = ?, caption = ?, revision = ?, modified_at = ?, read_only = ?, published = ?, text_en = ?, text_local = ?, first_year = ?, last_year = ?, estimation_id = ?, codec = ?, parameters = ?"
)

func (s *Store) Upsert(ctx context.Context, req domain.UpsertRequest) (domain.Identity, error) {
	switch req.Action {
	case domain.SaveInsert:
		return s.insert(ctx, req.Row, req.Replace)
	case domain.SaveUpdate:
		return s.update(ctx, req.Row)
	default:
		return domain.Identity{}, fmt.Errorf("upsert %s %d: action %s: %w", req.Row.Class, req.Row.ID, req.Action, domain.ErrUnsupported)
	}
}

func (s *Store) insert(ctx context.Context, row domain.CatalogRow, replace bool) (id domain.Identity, retErr error) {
	family := row.Class.Family()
	now := s.now().UTC().Truncate(time.Microsecond)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if replace {
		var (
			existing  int32
			revision  int
			published bool
			created   time.Time
		)
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT id, revision, published, created_at FROM catalog_entries WHERE class = ? AND title = ?`),
			string(row.Class), row.Title).Scan(&existing, &revision, &published, &created)
		switch {
		case err == nil:
			if published {
				return domain.Identity{}, domain.ConflictError{Family: family, Title: row.Title, Reason: "title taken by a published entry"}
			}
			next, err := domain.NextRevision(family, row.Title, uint8(revision))
			if err != nil {
				return domain.Identity{}, err
			}
			ident := domain.Identity{ID: existing, Revision: next, Created: created, Modified: now}
			args := append(s.setArgs(row, ident), existing)
			if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE catalog_entries SET `+setColumns+` WHERE id = ?`), args...); err != nil {
				return domain.Identity{}, s.mapError(family, row.Title, fmt.Errorf("replace entry: %w", err))
			}
			if err := tx.Commit(); err != nil {
				return domain.Identity{}, fmt.Errorf("commit: %w", err)
			}
			return ident, nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Identity{}, fmt.Errorf("lookup title: %w", err)
		}
	}

	ident := domain.Identity{Revision: 1, Created: now, Modified: now}
	var newID int64
	err = tx.QueryRowContext(ctx,
		s.rebind(`INSERT INTO catalog_entries (`+writeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		string(family), string(row.Class), row.Title, row.Caption, int(ident.Revision), ident.Created, ident.Modified,
		row.ReadOnly, row.Published, row.TextEn, row.TextLocal, row.FirstYear, row.LastYear, row.EstimationID, row.Codec, row.Parameters,
	).Scan(&newID)
	if err != nil {
		return domain.Identity{}, s.mapError(family, row.Title, fmt.Errorf("insert entry: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return domain.Identity{}, fmt.Errorf("commit: %w", err)
	}
	ident.ID = int32(newID)
	return ident, nil
}

func (s *Store) setArgs(row domain.CatalogRow, ident domain.Identity) []any {
	return []any{
		string(row.Class), row.Title, row.Caption, int(ident.Revision), ident.Modified, row.ReadOnly, row.Published,
		row.TextEn, row.TextLocal, row.FirstYear, row.LastYear, row.EstimationID, row.Codec, row.Parameters,
	}
}

func (s *Store) update(ctx context.Context, row domain.CatalogRow) (domain.Identity, error) {
	family := row.Class.Family()
	next, err := domain.NextRevision(family, row.Title, row.Revision)
	if err != nil {
		return domain.Identity{}, err
	}
	ident := domain.Identity{ID: row.ID, Revision: next, Modified: s.now().UTC().Truncate(time.Microsecond)}
	args := append(s.setArgs(row, ident), row.ID, string(family), int(row.Revision))
	err = s.db.QueryRowContext(ctx,
		s.rebind(`UPDATE catalog_entries SET `+setColumns+` WHERE id = ? AND family = ? AND revision = ? RETURNING created_at`),
		args...,
	).Scan(&ident.Created)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, s.mapError(family, row.Title, fmt.Errorf("update entry: %w", err))
	}
	var current int
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT revision FROM catalog_entries WHERE id = ? AND family = ?`), row.ID, string(family)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, domain.NotFoundError{Family: family, ID: row.ID}
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup revision: %w", err)
	}
	return domain.Identity{}, domain.ConflictError{
		Family: family,
		Title:  row.Title,
		Reason: fmt.Sprintf("revision %d is stale, stored revision is %d", row.Revision, current),
	}
}

func (s *Store) mapError(family domain.Family, title string, err error) error {
	if s.dialect.IsConflict(err) {
		return fmt.Errorf("%w: %w", domain.ConflictError{Family: family, Title: title, Reason: "title already taken"}, err)
	}
	return err
}

func scanEntry(sc interface{ Scan(...any) error }, row *domain.CatalogRow, extra ...any) error {
	var (
		family   string
		class    string
		revision int
	)
	dst := []any{
		&row.ID, &family, &class, &row.Title, &row.Caption, &revision, &row.Created, &row.Modified,
		&row.ReadOnly, &row.Published, &row.TextEn, &row.TextLocal, &row.FirstYear, &row.LastYear,
		&row.EstimationID, &row.Codec,
	}
	if err := sc.Scan(append(dst, extra...)...); err != nil {
		return err
	}
	row.Class = domain.Class(class)
	row.Revision = uint8(revision)
	return nil
}

func (s *Store) Get(ctx context.Context, family domain.Family, id int32) (domain.CatalogRow, error) {
	var row domain.CatalogRow
	r := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+entryColumns+`, parameters FROM catalog_entries WHERE id = ? AND family = ?`), id, string(family))
	err := scanEntry(r, &row, &row.Parameters)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogRow{}, domain.NotFoundError{Family: family, ID: id}
	}
	if err != nil {
		return domain.CatalogRow{}, fmt.Errorf("get %s %d: %w", family, id, err)
	}
	return row, nil
}

func (s *Store) List(ctx context.Context, family domain.Family) ([]domain.CatalogRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+entryColumns+` FROM catalog_entries WHERE family = ? ORDER BY id`), string(family))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", family, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.CatalogRow
	for rows.Next() {
		var row domain.CatalogRow
		if err := scanEntry(rows, &row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", family, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", family, err)
	}
	return out, nil
}

func (s *Store) DefineContainment(ctx context.Context, link domain.Containment, replace bool) error {
	var current int32
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT forecast_id FROM projection_forecasts WHERE projection_id = ? AND kind = ?`),
		link.ProjectionID, int(link.Kind)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO projection_forecasts (projection_id, kind, forecast_id) VALUES (?, ?, ?)`),
			link.ProjectionID, int(link.Kind), link.ForecastID)
		if err != nil {
			return s.mapError(domain.FamilyProjection, strconv.Itoa(int(link.ProjectionID)), fmt.Errorf("link forecast: %w", err))
		}
		return nil
	case err != nil:
		return fmt.Errorf("lookup containment: %w", err)
	case current == link.ForecastID:
		return nil
	case !replace:
		return domain.ConflictError{
			Family: domain.FamilyProjection,
			Title:  strconv.Itoa(int(link.ProjectionID)),
			Reason: fmt.Sprintf("%s forecast %d already linked", link.Kind, current),
		}
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE projection_forecasts SET forecast_id = ? WHERE projection_id = ? AND kind = ?`),
		link.ForecastID, link.ProjectionID, int(link.Kind)); err != nil {
		return fmt.Errorf("relink forecast: %w", err)
	}
	return nil
}

func (s *Store) Contained(ctx context.Context, projectionID int32) ([]int32, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT forecast_id FROM projection_forecasts WHERE projection_id = ? ORDER BY kind`), projectionID)
	if err != nil {
		return nil, fmt.Errorf("select containment: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan containment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containment: %w", err)
	}
	return ids, nil
}

// CheckTable rejects table names outside the declared result tables before
// they are spliced into SQL.
func CheckTable(table domain.ResultTable) error {
	if !table.Known() {
		return &domain.UnsupportedError{Entity: "result table", Field: "name", Value: string(table)}
	}
	return nil
}

// InsertStatement renders the single-row INSERT for table.
func (s *Store) InsertStatement(table domain.ResultTable) string {
	cols := table.Columns()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks))
}

// InsertRows writes rows one statement at a time, committing every
// BatchSize rows.
func (s *Store) InsertRows(ctx context.Context, table domain.ResultTable, rows []domain.ResultRow) (int64, error) {
	if err := CheckTable(table); err != nil {
		return 0, err
	}
	var total int64
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		n, err := s.insertBatch(ctx, table, rows[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Store) insertBatch(ctx context.Context, table domain.ResultTable, rows []domain.ResultRow) (n int64, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	query := s.InsertStatement(table)
	exec := func(args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	if s.dialect.PrepareInserts {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("prepare %s insert: %w", table, err)
		}
		defer func() { _ = stmt.Close() }()
		exec = func(args ...any) error {
			_, err := stmt.ExecContext(ctx, args...)
			return err
		}
	}
	for _, row := range rows {
		if err := exec(table.Values(row)...); err != nil {
			return 0, fmt.Errorf("insert %s row: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s rows: %w", table, err)
	}
	return int64(len(rows)), nil
}

func (s *Store) DeleteRows(ctx context.Context, table domain.ResultTable, catalogID int32) (int64, error) {
	if err := CheckTable(table); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, table.KeyColumn())), catalogID)
	if err != nil {
		return 0, fmt.Errorf("delete %s rows: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s rows: %w", table, err)
	}
	return n, nil
}

func (s *Store) QueryRows(ctx context.Context, table domain.ResultTable, catalogID int32) ([]domain.ResultRow, error) {
	if err := CheckTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY year", strings.Join(table.Columns(), ", "), table, table.KeyColumn())
	rows, err := s.db.QueryContext(ctx, s.rebind(query), catalogID)
	if err != nil {
		return nil, fmt.Errorf("select %s rows: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.ResultRow
	for rows.Next() {
		var r domain.ResultRow
		if err := rows.Scan(table.ScanTargets(&r)...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return out, nil
}
