// Package migrations holds the read database schema.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the projection tables.
//
//go:embed *.sql
var FS embed.FS
