// Package sqldocs exposes the catalog SQL bundles directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the catalog and result-table DDL for SQLite.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the catalog and result-table DDL for Postgres.
//
//go:embed postgres.sql
var Postgres string
