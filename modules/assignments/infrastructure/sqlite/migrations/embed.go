// Package migrations holds the SQLite schema of the embedded assignment store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
