// Package migrations embeds the goose SQL migration set for the
// persistence row store (see internal/persist).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
