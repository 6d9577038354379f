package dumpdriver

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registers as "sqlite"
)

// SQLiteDriver implements Driver against a SQLite database file. Dump uses
// VACUUM INTO, which produces a fresh, compacted, deterministic copy of the
// database contents with no write-ahead-log or journal artifacts baked in.
type SQLiteDriver struct {
	dbPath string
	logger *slog.Logger
}

// NewSQLiteDriver creates a driver against the SQLite database at dbPath.
func NewSQLiteDriver(dbPath string, logger *slog.Logger) *SQLiteDriver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return &SQLiteDriver{dbPath: dbPath, logger: logger}
}

// Dump implements Driver.
func (d *SQLiteDriver) Dump(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dumpdriver: removing existing dump %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", d.dbPath)
	if err != nil {
		return fmt.Errorf("dumpdriver: opening %q: %w", d.dbPath, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("dumpdriver: vacuum into %q: %w", path, err)
	}

	d.logger.Debug("dumpdriver: dumped", "db", d.dbPath, "dump", path)

	return nil
}

// Import implements Driver: drops the target database file and replaces it
// wholesale with the dump's contents, since a SQLite dump produced by Dump
// is itself a complete, loadable database file.
func (d *SQLiteDriver) Import(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dumpdriver: opening dump %q: %w", path, err)
	}
	defer in.Close()

	tmp := d.dbPath + ".importing"

	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dumpdriver: creating %q: %w", tmp, err)
	}

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmp)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("dumpdriver: copying dump into %q: %w", tmp, err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("dumpdriver: syncing %q: %w", tmp, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("dumpdriver: closing %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, d.dbPath); err != nil {
		return fmt.Errorf("dumpdriver: replacing %q: %w", d.dbPath, err)
	}

	succeeded = true
	d.logger.Debug("dumpdriver: imported", "dump", path, "db", d.dbPath)

	return nil
}
