// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the Postgres migrations, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
