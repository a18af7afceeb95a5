// Package migrate applies the goose SQL migrations that define the rental
// schema. Binaries carry the migrations embedded; a directory on disk can be
// used instead while authoring new ones.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/cinerent/cinerent-backend/pkg/logger"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// ErrUnknownCommand is returned by Migrator.Run for unsupported commands.
var ErrUnknownCommand = errors.New("unknown migrate command")

// Files returns the migration set in dir, or the embedded set when dir is empty.
func Files(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	return os.DirFS(dir), nil
}

// Options select the migration source and SQL dialect.
type Options struct {
	Dir     string
	Dialect goose.Dialect
}

// Migrator wraps a goose provider bound to one database.
type Migrator struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func New(db *sql.DB, opts Options, logg *logger.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	files, err := Files(opts.Dir)
	if err != nil {
		return nil, err
	}
	dialect := opts.Dialect
	if dialect == "" {
		dialect = goose.DialectPostgres
	}
	provider, err := goose.NewProvider(dialect, db, files)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider, logg: logg}, nil
}

// Run dispatches a CLI-style command: up, down, redo, status or version.
// version takes the target as its single argument.
func (m *Migrator) Run(ctx context.Context, command string, args ...string) error {
	switch command {
	case "up":
		return m.Up(ctx)
	case "down":
		return m.Down(ctx)
	case "redo":
		return m.Redo(ctx)
	case "status":
		return m.Status(ctx)
	case "version":
		if len(args) != 1 {
			return errors.New("version requires a target version")
		}
		return m.To(ctx, args[0])
	default:
		return fmt.Errorf("%w %q", ErrUnknownCommand, command)
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	m.report(ctx, results...)
	return wrap("up", err)
}

func (m *Migrator) Down(ctx context.Context) error {
	result, err := m.provider.Down(ctx)
	m.report(ctx, result)
	return wrap("down", err)
}

// Redo rolls back the latest migration and applies it again.
func (m *Migrator) Redo(ctx context.Context) error {
	if err := m.Down(ctx); err != nil {
		return err
	}
	result, err := m.provider.UpByOne(ctx)
	m.report(ctx, result)
	return wrap("redo", err)
}

// To migrates up or down until the database sits at target.
func (m *Migrator) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = m.provider.UpTo(ctx, version)
	case version < current:
		results, err = m.provider.DownTo(ctx, version)
	}
	m.report(ctx, results...)
	return wrap(fmt.Sprintf("migrate to %d", version), err)
}

// Version reports the highest applied migration.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read db version: %w", err)
	}
	return version, nil
}

// Status logs the applied state of every known migration.
func (m *Migrator) Status(ctx context.Context) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return wrap("status", err)
	}
	if m.logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"path":    st.Source.Path,
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
	if m.logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		m.logg.Info(logCtx, "migration applied")
	}
}

func wrap(step string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", step, err)
}
