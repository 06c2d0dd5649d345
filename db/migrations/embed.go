// Package dbmigrations exposes embedded SQL migrations for pgpool binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into pgpool binaries.
//
//go:embed *.sql
var Files embed.FS
