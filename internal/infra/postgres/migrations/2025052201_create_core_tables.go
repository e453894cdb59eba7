package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_core_tables.sql
var createCoreTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createCoreTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS user_progress;
				DROP TABLE IF EXISTS ledger_entries;
				DROP TABLE IF EXISTS attempts;
				DROP TABLE IF EXISTS accounts;
				DROP TABLE IF EXISTS quizzes`)
			return err
		},
	)
}
