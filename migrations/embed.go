// Package migrations holds the goose schema migrations, one directory per SQL dialect.
package migrations

import "embed"

//go:embed mysql/*.sql postgres/*.sql sqlite/*.sql
var FS embed.FS
