// Package migrations embeds the SQL schema migrations applied by the engine
// on first open.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
