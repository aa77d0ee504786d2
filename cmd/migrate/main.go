package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the migrations built into the binary")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", opts.cmd)

	if err := runOffline(opts, os.Stdout); !errors.Is(err, errNeedsDatabase) {
		if err != nil {
			logg.Error(ctx, "migrate failed", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "sqlite schema is bootstrapped from models; nothing to migrate")
		return
	}

	if err := runOnline(ctx, cfg, logg, opts, os.Stdout); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

var errNeedsDatabase = errors.New("command needs a database")

// runOffline handles the commands that only touch the source tree.
func runOffline(opts options, out io.Writer) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("-name is required for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", path)
		return nil
	case "validate":
		if err := migrate.Validate(migrate.Source(opts.dir)); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations valid")
		return nil
	default:
		return errNeedsDatabase
	}
}

func runOnline(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options, out io.Writer) error {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(opts.dir))
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "ledger schema up to date")
		return nil
	case "down":
		return runner.Down(ctx)
	case "status":
		return runner.Status(ctx, out)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("-version is required for version")
		}
		return runner.To(ctx, opts.version)
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
}
