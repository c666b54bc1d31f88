// Package migrations embeds the relay's SQL schema into the binary and
// registers it with the database package on import.
package migrations

import (
	"embed"

	"github.com/nerrad567/countrelay/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
