package cli

import (
	"database/sql"
	"flag"
	"os"

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/server"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	migrationTable = "migration_info"
	dialect        = "postgres"
)

// MigrateMain runs a schema migration subcommand: up, down, redo, or
// status, against migrations/ read straight off disk rather than
// through a generated asset box, since this module carries no embed
// step for them. Grounded on the teacher's cmd/migrate.go subcommand
// dispatch and its migrate.ExecMax/GetMigrationRecords usage.
func MigrateMain(args []string) {
	consoleLogger := server.NewJSONLogger(os.Stdout, zap.InfoLevel, server.JSONFormat)
	if len(args) == 0 {
		consoleLogger.Fatal("migrate requires a subcommand: up, down, redo, or status")
	}

	flagSet := flag.NewFlagSet("migrate", flag.ExitOnError)
	dsn := flagSet.String("database.dsn", "postgres://root@localhost:5432/obstacle_engine?sslmode=disable", "Postgres DSN to migrate.")
	dir := flagSet.String("dir", "migrations", "Directory containing sql-migrate formatted .sql files.")
	limit := flagSet.Int("limit", 0, "Maximum number of migrations to apply (0 means no limit for up and one migration for down; ignored by redo).")
	_ = flagSet.Parse(args[1:])

	migrate.SetTable(migrationTable)
	source := &migrate.FileMigrationSource{Dir: *dir}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		consoleLogger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		consoleLogger.Fatal("failed to ping database", zap.Error(err))
	}

	switch args[0] {
	case "up":
		n, err := migrate.ExecMax(db, dialect, source, migrate.Up, *limit)
		if err != nil {
			consoleLogger.Fatal("failed to apply migrations", zap.Int("applied", n), zap.Error(err))
		}
		consoleLogger.Info("applied migrations", zap.Int("count", n))
	case "down":
		n := *limit
		if n == 0 {
			n = 1
		}
		applied, err := migrate.ExecMax(db, dialect, source, migrate.Down, n)
		if err != nil {
			consoleLogger.Fatal("failed to roll back migrations", zap.Int("applied", applied), zap.Error(err))
		}
		consoleLogger.Info("rolled back migrations", zap.Int("count", applied))
	case "redo":
		if _, err := migrate.ExecMax(db, dialect, source, migrate.Down, 1); err != nil {
			consoleLogger.Fatal("failed to roll back migration for redo", zap.Error(err))
		}
		if _, err := migrate.ExecMax(db, dialect, source, migrate.Up, 1); err != nil {
			consoleLogger.Fatal("failed to reapply migration for redo", zap.Error(err))
		}
		consoleLogger.Info("redid last migration")
	case "status":
		records, err := migrate.GetMigrationRecords(db, dialect)
		if err != nil {
			consoleLogger.Fatal("failed to read migration records", zap.Error(err))
		}
		consoleLogger.Info("applied migrations", zap.Int("count", len(records)))
		for _, r := range records {
			consoleLogger.Info("migration", zap.String("id", r.Id), zap.Time("applied_at", r.AppliedAt))
		}
	default:
		consoleLogger.Fatal("unrecognized migrate subcommand, expected: up, down, redo, or status")
	}

	os.Exit(0)
}
