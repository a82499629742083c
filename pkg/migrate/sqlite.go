package migrate

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates the tables on a SQLite connection. Goose migrations
// target Postgres (gist exclusion, jsonb), so local SQLite runs use this
// equivalent schema without the Postgres-only constraints.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
