package migrations

import "embed"

// FS contains the embedded Postgres schema for the poll engine.
//
//go:embed *.sql
var FS embed.FS
