// Package migrations embeds the registry schema into the binary so a
// deployment is a single executable with no SQL files alongside it.
//
// Schema steps are forward-only *.up.sql files named
// YYYYMMDD_HHMMSS_description.up.sql; the database package applies
// them in name order at boot.
package migrations

import (
	"embed"

	"github.com/nerrad567/hearth-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
