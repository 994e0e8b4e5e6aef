// Package migrations embeds the arena store's SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
