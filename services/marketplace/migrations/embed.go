// Package migrations embeds the marketplace service schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
