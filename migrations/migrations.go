// Package migrations embeds the SQL migrations of the remote schema.
package migrations

import "embed"

// FS holds goose migration files.
//
//go:embed *.sql
var FS embed.FS
