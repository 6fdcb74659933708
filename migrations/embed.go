// Package migrations embebe los archivos SQL del esquema relacional.
package migrations

import "embed"

//go:embed postgres/*.sql
var PostgresFS embed.FS

// PostgresDir es el subdirectorio de PostgresFS con las migrations.
const PostgresDir = "postgres"
