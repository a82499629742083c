package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

const DefaultDir = "pkg/migrate/migrations"

// Migrator applies the goose SQL files in one directory to a Postgres database.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewMigrator(db *sql.DB, dir string, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider for %s: %w", dir, err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration only.
func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	m.report(ctx, result)
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Redo rolls back the latest migration and applies it again.
func (m *Migrator) Redo(ctx context.Context) error {
	if err := m.Down(ctx); err != nil {
		return err
	}
	result, err := m.provider.UpByOne(ctx)
	m.report(ctx, result)
	if err != nil {
		return fmt.Errorf("goose up-by-one: %w", err)
	}
	return nil
}

// To moves the schema up or down until version (YYYYMMDDHHMMSS) is current.
func (m *Migrator) To(ctx context.Context, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current < target:
		results, err = m.provider.UpTo(ctx, target)
	case current > target:
		results, err = m.provider.DownTo(ctx, target)
	}
	m.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose to %d: %w", target, err)
	}
	return nil
}

// Status logs one line per migration file with its applied state.
func (m *Migrator) Status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		m.logg.Info(m.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (m *Migrator) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"version":     r.Source.Version,
			"file":        r.Source.Path,
			"direction":   r.Direction,
			"duration_ms": r.Duration.Milliseconds(),
		})
		if r.Error != nil {
			m.logg.Error(logCtx, "migration failed", r.Error)
			continue
		}
		m.logg.Info(logCtx, "migration applied")
	}
}
