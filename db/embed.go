// Package db embeds the PostgreSQL schema of the inventory store.
package db

import _ "embed"

// Schema contains the DDL for the inventory table. Statements are
// idempotent so it can run on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
