// Package migrations embeds the goose-format SQL migration trees for both
// storage dialects so the binary carries its own schema regardless of
// working directory.
package migrations

import "embed"

// SQLiteFS holds the migrations applied to the embedded file backend.
//
//go:embed sqlite/*.sql
var SQLiteFS embed.FS

// PostgresFS holds the migrations applied to the networked server backend.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
