package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema migration, registered from the versioned files
// of this package.
var Migrations = migrate.NewMigrations()
