package migrate_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinerent/cinerent-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMoviesMigrationGuardsStock(t *testing.T) {
	assertContains(t, readMigration(t, "create_users_and_movies"), []string{
		"CREATE TABLE IF NOT EXISTS movies",
		"CONSTRAINT movies_stock_nonnegative CHECK (stock >= 0)",
		"daily_rental_rate numeric(12,2) NOT NULL",
		"DROP TABLE IF EXISTS movies",
	})
}

func TestTransactionsMigrationHasUniqueOrderID(t *testing.T) {
	assertContains(t, readMigration(t, "create_transactions"), []string{
		"CONSTRAINT transactions_order_id_key UNIQUE (order_id)",
		"FOREIGN KEY (rental_id) REFERENCES rentals(id)",
		"DROP TABLE IF EXISTS transactions",
	})
}

func TestTransactionsAllowOnePendingRentalPayment(t *testing.T) {
	assertContains(t, readMigration(t, "one_pending_rental_payment"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS transactions_one_pending_rental_key",
		"WHERE status = 'pending' AND payment_type = 'rental'",
		"DROP INDEX IF EXISTS transactions_one_pending_rental_key",
	})
}

func TestStockMovementsMigrationDedupesPerRental(t *testing.T) {
	assertContains(t, readMigration(t, "create_stock_movements"), []string{
		"CONSTRAINT stock_movements_rental_kind_key UNIQUE (rental_id, kind)",
		"DROP TABLE IF EXISTS stock_movements",
	})
}

func TestRentalsMigrationDefaults(t *testing.T) {
	assertContains(t, readMigration(t, "create_rentals"), []string{
		"payment_status rental_payment_status NOT NULL DEFAULT 'pending'",
		"rental_status rental_status NOT NULL DEFAULT 'ongoing'",
		"CONSTRAINT rentals_late_fee_nonnegative CHECK (late_fee >= 0)",
	})
}

func TestValidateDirAcceptsMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir returned error: %v", err)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename error")
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Movie Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration returned error: %v", err)
	}
	if !strings.HasSuffix(path, "_add_movie_index.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDirectory(t *testing.T) {
	files, err := migrate.Files("")
	if err != nil {
		t.Fatalf("embedded files: %v", err)
	}
	if err := migrate.ValidateFS(files); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	embedded, err := fs.Glob(files, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) != len(onDisk) || len(embedded) == 0 {
		t.Fatalf("embedded %d migrations, directory has %d", len(embedded), len(onDisk))
	}
}

func writeMigration(t *testing.T, dir, name, up, down string) {
	t.Helper()
	body := "-- +goose Up\n" + up + "\n\n-- +goose Down\n" + down + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestMigratorWalksVersionsOnSQLite(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20250101000000_create_movies.sql",
		"CREATE TABLE movies (id TEXT PRIMARY KEY, stock INTEGER NOT NULL);",
		"DROP TABLE movies;")
	writeMigration(t, dir, "20250101000100_create_rentals.sql",
		"CREATE TABLE rentals (id TEXT PRIMARY KEY, movie_id TEXT NOT NULL);",
		"DROP TABLE rentals;")

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrate.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrator, err := migrate.New(sqlDB, migrate.Options{Dir: dir, Dialect: goose.DialectSQLite3}, nil)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	ctx := context.Background()

	if err := migrator.Run(ctx, "up"); err != nil {
		t.Fatalf("up: %v", err)
	}
	assertVersion(t, migrator, 20250101000100)

	if err := migrator.Run(ctx, "version", "20250101000000"); err != nil {
		t.Fatalf("version down: %v", err)
	}
	assertVersion(t, migrator, 20250101000000)

	if err := migrator.Run(ctx, "redo"); err != nil {
		t.Fatalf("redo: %v", err)
	}
	assertVersion(t, migrator, 20250101000000)

	if err := migrator.Run(ctx, "sideways"); !errors.Is(err, migrate.ErrUnknownCommand) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func assertVersion(t *testing.T, m *migrate.Migrator, want int64) {
	t.Helper()
	got, err := m.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if got != want {
		t.Fatalf("expected version %d, got %d", want, got)
	}
}
