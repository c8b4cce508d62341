package postgres

import (
	"embed"
	"io/fs"

	"github.com/clinicflow/clinicflow/integration/database/pg"
)

// MigrationsTable tracks the applied store migrations.
const MigrationsTable = "store_goose_db_version"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the clinic schema migrations.
func Migrations() pg.Migrations {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return pg.Migrations{FS: sub, Table: MigrationsTable}
}
