// Package hrdb holds all the migrations for the HR analytics database
package hrdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection all migrations in this package register into.
var Migrations = migrate.NewMigrations()
