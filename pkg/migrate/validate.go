package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var migrationFile = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// ValidateDir checks file naming, version uniqueness and that every file is
// reversible. It runs offline in CI before any database is touched.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	owners := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := migrationFile.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if other, dup := owners[match[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], other, name)
		}
		owners[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		for _, annotation := range requiredAnnotations {
			if !strings.Contains(string(body), annotation) {
				return fmt.Errorf("migration %q missing %q", name, annotation)
			}
		}
	}
	return nil
}
