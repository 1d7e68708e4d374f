package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"escrowdesk/internal/config"
	"escrowdesk/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const downMarker = "-- +migrate Down"

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql migrations")
	down := flag.Bool("down", false, "roll back the most recently applied migration")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	// Only the database settings matter here, so market validation errors are not fatal.
	cfg, err := config.Load()
	if err != nil {
		if cfg.DatabaseURL == "" {
			logger.Fatal("failed to load config", zap.Error(err))
		}
		logger.Warn("config incomplete", zap.Error(err))
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logger.Fatal("failed to ensure schema_migrations", zap.Error(err))
	}

	if *down {
		if err := rollbackLatest(ctx, database, *dir, logger); err != nil {
			logger.Fatal("rollback failed", zap.Error(err))
		}
		return
	}
	if err := applyPending(ctx, database, *dir, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

func applyPending(ctx context.Context, database *sqlx.DB, dir string, logger *zap.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return errors.Wrap(err, "list migrations")
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return errors.Wrap(err, "read migration state")
		}
		if exists {
			continue
		}
		up, _, err := readSections(file)
		if err != nil {
			return err
		}
		err = inTx(ctx, database, func(tx *sqlx.Tx) error {
			if err := execAll(ctx, tx, up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "apply %s", filename)
		}
		logger.Info("applied migration", zap.String("file", filename))
	}
	return nil
}

func rollbackLatest(ctx context.Context, database *sqlx.DB, dir string, logger *zap.Logger) error {
	var filename string
	err := database.GetContext(ctx, &filename, `SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`)
	if err != nil {
		return errors.Wrap(err, "find latest migration")
	}
	_, down, err := readSections(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	err = inTx(ctx, database, func(tx *sqlx.Tx) error {
		if err := execAll(ctx, tx, down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE filename = $1`, filename)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "roll back %s", filename)
	}
	logger.Info("rolled back migration", zap.String("file", filename))
	return nil
}

// readSections splits a migration file into its up and down statements.
func readSections(path string) ([]string, []string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read migration")
	}
	up, down, _ := strings.Cut(string(content), downMarker)
	return splitSQL(up), splitSQL(down), nil
}

func inTx(ctx context.Context, database *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := database.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func execAll(ctx context.Context, tx *sqlx.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitSQL breaks a script on lines ending a statement. Comment lines are dropped.
func splitSQL(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	scanner := bufio.NewScanner(strings.NewReader(script))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	out := statements[:0]
	for _, stmt := range statements {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
