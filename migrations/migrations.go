// Package migrations embeds the SQL schema applied by postgres.Migrate.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Files are applied in
// lexical order.
//
//go:embed *.sql
var FS embed.FS
