package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/cinerent/cinerent-backend/pkg/config"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	opts := options{}
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: the set embedded in this binary; create/validate use "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem
	authoringDir := opts.dir
	if authoringDir == "" {
		authoringDir = migrate.DefaultDir
	}
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			exitUsage("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(authoringDir, opts.name)
		if err != nil {
			fail(context.Background(), logg, "create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(authoringDir); err != nil {
			fail(context.Background(), logg, "validate migrations", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(context.Background(), logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "extract sql database", err)
	}

	dialect := goose.DialectPostgres
	if strings.EqualFold(cfg.DB.Driver, "sqlite") {
		dialect = goose.DialectSQLite3
	}
	migrator, err := migrate.New(sqlDB, migrate.Options{Dir: opts.dir, Dialect: dialect}, logg)
	if err != nil {
		fail(ctx, logg, "load migrations", err)
	}

	if err := run(ctx, migrator, opts); err != nil {
		if errors.Is(err, errUsage) {
			exitUsage(err.Error())
		}
		fail(ctx, logg, "goose "+opts.cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func run(ctx context.Context, migrator *migrate.Migrator, opts options) error {
	var args []string
	if opts.cmd == "version" {
		if opts.version == "" {
			return fmt.Errorf("%w: missing -version for version command", errUsage)
		}
		args = append(args, opts.version)
	}
	err := migrator.Run(ctx, opts.cmd, args...)
	if errors.Is(err, migrate.ErrUnknownCommand) {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return err
}

func exitUsage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	flag.Usage()
	os.Exit(2)
}

func fail(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, fmt.Sprintf("migrate failed: %s", step), err)
	os.Exit(1)
}
