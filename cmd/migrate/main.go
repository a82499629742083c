package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()

	// offline commands skip config so they work without a database env
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fail("failed to load config: %v", err)
	}
	if cfg.DB.Driver == config.DriverSQLite {
		fail("cmd/migrate targets postgres; sqlite schemas are applied by the dev auto-run")
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	// goose gets its own lib/pq pool so closing it never touches a gorm client
	sqlDB, err := sql.Open("postgres", cfg.DB.DSN)
	if err != nil {
		logg.Error(ctx, "failed to open database", err)
		os.Exit(1)
	}
	defer sqlDB.Close()
	if err := sqlDB.PingContext(ctx); err != nil {
		logg.Error(ctx, "database unreachable", err)
		os.Exit(1)
	}

	migrator, err := migrate.NewMigrator(sqlDB, *dir, logg)
	if err != nil {
		logg.Error(ctx, "failed to load migrations", err)
		os.Exit(1)
	}

	commands := map[string]func(context.Context) error{
		"up":     migrator.Up,
		"down":   migrator.Down,
		"redo":   migrator.Redo,
		"status": migrator.Status,
		"version": func(ctx context.Context) error {
			return migrator.To(ctx, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		fail("unknown -cmd value: %s", *cmd)
	}

	if err := run(ctx); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command complete")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
