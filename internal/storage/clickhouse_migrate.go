package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rbrinkke/userprofile-api/internal/logging"
)

type clickHouseMigration struct {
	name       string
	statements []string
}

// RunClickHouseMigrations applies every .sql file in migrationsPath in
// name order. ClickHouse keeps no version table here, so statements must
// be idempotent (CREATE ... IF NOT EXISTS).
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string, logger *logging.Logger) error {
	migrations, err := loadClickHouseMigrations(migrationsPath)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		logger.WithField("path", migrationsPath).Warn("no ClickHouse migration files found")
		return nil
	}

	for _, mig := range migrations {
		for i, stmt := range mig.statements {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, mig.name, err)
			}
		}
		logger.WithFields(map[string]interface{}{
			"file":       mig.name,
			"statements": len(mig.statements),
		}).Info("applied ClickHouse migration")
	}
	return nil
}

func loadClickHouseMigrations(dir string) ([]clickHouseMigration, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("invalid migrations path %s: %w", dir, err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	sort.Strings(names)

	out := make([]clickHouseMigration, 0, len(names))
	for _, path := range names {
		content, err := os.ReadFile(path) // #nosec G304 - path comes from the configured migrations dir
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", path, err)
		}
		out = append(out, clickHouseMigration{
			name:       filepath.Base(path),
			statements: splitSQLStatements(string(content)),
		})
	}
	return out, nil
}

// splitSQLStatements drops "--" comment lines and splits on statement
// terminating semicolons. A trailing statement without ';' is kept.
func splitSQLStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
			kept = append(kept, line)
		}
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
