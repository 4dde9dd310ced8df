package migrations

import "embed"

// FS contains embedded SQLite migrations for poll storage.
//
//go:embed *.sql
var FS embed.FS
