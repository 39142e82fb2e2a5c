// Package migrations carries the versioned SQL schema for stockflow.
// Files follow the golang-migrate naming scheme NNNNNN_name.{up,down}.sql.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
