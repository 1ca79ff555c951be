// Package testutil provides a normalized stub database for postgres store tests.
//
// The stub understands the narrow statement shapes the catalog issues:
// INSERT (optionally RETURNING), SELECT/UPDATE/DELETE with AND-ed equality
// predicates, and ORDER BY on a single column. DDL is recorded and ignored.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// StubConn records normalized statements for the postgres store during tests.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool
	// Unique lists column sets per table that must stay unique; a violating
	// write fails with a 23505 *pgconn.PgError.
	Unique map[string][][]string
	nextID map[string]int64
}

var registered atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{
		Tables: make(map[string][]map[string]any),
		Unique: map[string][][]string{
			"catalog_entries":      {{"class", "title"}},
			"projection_forecasts": {{"projection_id", "kind"}},
		},
		nextID: make(map[string]int64),
	}
	name := fmt.Sprintf("stubpg%d_%d", time.Now().UnixNano(), registered.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// Rows returns the rows stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Tables[table])
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	switch verb(query) {
	case "INSERT":
		if _, err := c.insert(query, args); err != nil {
			return nil, err
		}
		return driver.RowsAffected(1), nil
	case "UPDATE":
		matched, err := c.update(query, args)
		if err != nil {
			return nil, err
		}
		return driver.RowsAffected(len(matched)), nil
	case "DELETE":
		n, err := c.delete(query, args)
		if err != nil {
			return nil, err
		}
		return driver.RowsAffected(n), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		matched []map[string]any
		cols    []string
		err     error
	)
	switch verb(query) {
	case "INSERT":
		var row map[string]any
		row, err = c.insert(query, args)
		if row != nil {
			matched = []map[string]any{row}
		}
		cols = returning(query)
	case "UPDATE":
		matched, err = c.update(query, args)
		cols = returning(query)
	default:
		matched, cols, err = c.selectRows(query, args)
	}
	if err != nil {
		return nil, err
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

func verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func (c *StubConn) checkTable(table string) error {
	if c.FailTables != nil && c.FailTables[table] {
		return fmt.Errorf("exec fail for %s", table)
	}
	return nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (map[string]any, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if err := c.checkTable(table); err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if table == "catalog_entries" && row["id"] == nil {
		c.nextID[table]++
		row["id"] = c.nextID[table]
	}
	if err := c.checkUnique(table, row, -1); err != nil {
		return nil, err
	}
	c.Tables[table] = append(c.Tables[table], row)
	return row, nil
}

func (c *StubConn) update(query string, args []driver.NamedValue) ([]map[string]any, error) {
	table, sets, where, err := parseUpdate(query)
	if err != nil {
		return nil, err
	}
	if err := c.checkTable(table); err != nil {
		return nil, err
	}
	var matched []map[string]any
	for i, row := range c.Tables[table] {
		if !matches(row, where, args) {
			continue
		}
		next := make(map[string]any, len(row))
		for k, v := range row {
			next[k] = v
		}
		for col, idx := range sets {
			next[col] = args[idx].Value
		}
		if err := c.checkUnique(table, next, i); err != nil {
			return nil, err
		}
		c.Tables[table][i] = next
		matched = append(matched, next)
	}
	return matched, nil
}

func (c *StubConn) delete(query string, args []driver.NamedValue) (int, error) {
	table, where, err := parseDelete(query)
	if err != nil {
		return 0, err
	}
	if err := c.checkTable(table); err != nil {
		return 0, err
	}
	before := len(c.Tables[table])
	c.Tables[table] = slices.DeleteFunc(c.Tables[table], func(row map[string]any) bool { return matches(row, where, args) })
	return before - len(c.Tables[table]), nil
}

func (c *StubConn) selectRows(query string, args []driver.NamedValue) ([]map[string]any, []string, error) {
	table, cols, where, order, err := parseSelect(query)
	if err != nil {
		return nil, nil, err
	}
	if err := c.checkTable(table); err != nil {
		return nil, nil, fmt.Errorf("query fail for %s", table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[table] {
		if matches(row, where, args) {
			matched = append(matched, row)
		}
	}
	if order != "" {
		slices.SortStableFunc(matched, func(a, b map[string]any) int { return compareValues(a[order], b[order]) })
	}
	return matched, cols, nil
}

func (c *StubConn) checkUnique(table string, row map[string]any, skip int) error {
	for _, cols := range c.Unique[table] {
		for i, existing := range c.Tables[table] {
			if i == skip {
				continue
			}
			same := true
			for _, col := range cols {
				if !reflect.DeepEqual(existing[col], row[col]) {
					same = false
					break
				}
			}
			if same {
				return &pgconn.PgError{
					Code:           "23505",
					Message:        "duplicate key value violates unique constraint",
					TableName:      table,
					ConstraintName: table + "_" + strings.Join(cols, "_") + "_key",
				}
			}
		}
	}
	return nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// predicate is one "column = $n" term; arg is zero-based.
type predicate struct {
	col string
	arg int
}

func matches(row map[string]any, where []predicate, args []driver.NamedValue) bool {
	for _, p := range where {
		if p.arg >= len(args) || !reflect.DeepEqual(row[p.col], args[p.arg].Value) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		return int(av - bv)
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	}
	return 0
}

func placeholder(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "$") {
		return 0, fmt.Errorf("expected placeholder, got %q", raw)
	}
	n, err := strconv.Atoi(raw[1:])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad placeholder %q", raw)
	}
	return n - 1, nil
}

func parseWhere(clause string) ([]predicate, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, nil
	}
	var preds []predicate
	for _, term := range splitKeyword(clause, " AND ") {
		parts := strings.SplitN(term, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("cannot parse predicate: %s", term)
		}
		idx, err := placeholder(parts[1])
		if err != nil {
			return nil, err
		}
		preds = append(preds, predicate{col: strings.ToLower(strings.TrimSpace(parts[0])), arg: idx})
	}
	return preds, nil
}

// splitKeyword splits s on a case-insensitive keyword.
func splitKeyword(s, keyword string) []string {
	var out []string
	for {
		idx := strings.Index(strings.ToUpper(s), keyword)
		if idx == -1 {
			return append(out, strings.TrimSpace(s))
		}
		out = append(out, strings.TrimSpace(s[:idx]))
		s = s[idx+len(keyword):]
	}
}

// cutKeyword returns the text before and after the first case-insensitive
// occurrence of keyword.
func cutKeyword(s, keyword string) (string, string, bool) {
	idx := strings.Index(strings.ToUpper(s), keyword)
	if idx == -1 {
		return s, "", false
	}
	return s[:idx], s[idx+len(keyword):], true
}

func returning(query string) []string {
	_, cols, ok := cutKeyword(query, " RETURNING ")
	if !ok {
		return nil
	}
	return splitColumns(cols)
}

func parseInsert(query string) (string, []string, error) {
	_, rest, ok := cutKeyword(query, "INTO ")
	if !ok {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest = strings.TrimSpace(rest)
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseUpdate(query string) (string, map[string]int, []predicate, error) {
	body, _, _ := cutKeyword(query, " RETURNING ")
	head, setClause, ok := cutKeyword(body, " SET ")
	if !ok {
		return "", nil, nil, fmt.Errorf("cannot parse update: %s", query)
	}
	fields := strings.Fields(head)
	if len(fields) != 2 {
		return "", nil, nil, fmt.Errorf("cannot parse update: %s", query)
	}
	setClause, whereClause, _ := cutKeyword(setClause, " WHERE ")
	sets := make(map[string]int)
	for _, assignment := range strings.Split(setClause, ",") {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 {
			return "", nil, nil, fmt.Errorf("cannot parse assignment: %s", assignment)
		}
		idx, err := placeholder(parts[1])
		if err != nil {
			return "", nil, nil, err
		}
		sets[strings.ToLower(strings.TrimSpace(parts[0]))] = idx
	}
	where, err := parseWhere(whereClause)
	if err != nil {
		return "", nil, nil, err
	}
	return strings.ToLower(fields[1]), sets, where, nil
}

func parseDelete(query string) (string, []predicate, error) {
	_, rest, ok := cutKeyword(query, "DELETE FROM ")
	if !ok {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	table, whereClause, ok := cutKeyword(rest, " WHERE ")
	if !ok {
		return "", nil, fmt.Errorf("cannot parse delete: %s", query)
	}
	where, err := parseWhere(whereClause)
	if err != nil {
		return "", nil, err
	}
	return strings.ToLower(strings.TrimSpace(table)), where, nil
}

func parseSelect(query string) (table string, cols []string, where []predicate, order string, err error) {
	_, rest, ok := cutKeyword(query, "SELECT ")
	if !ok {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	colList, rest, ok := cutKeyword(rest, " FROM ")
	if !ok {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	rest, orderClause, _ := cutKeyword(rest, " ORDER BY ")
	tablePart, whereClause, _ := cutKeyword(rest, " WHERE ")
	fields := strings.Fields(tablePart)
	if len(fields) == 0 {
		return "", nil, nil, "", fmt.Errorf("cannot parse select: %s", query)
	}
	where, err = parseWhere(whereClause)
	if err != nil {
		return "", nil, nil, "", err
	}
	if orderFields := strings.Fields(orderClause); len(orderFields) > 0 {
		order = strings.ToLower(strings.TrimSuffix(orderFields[0], ","))
	}
	return strings.ToLower(fields[0]), splitColumns(colList), where, order, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
