package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var ErrUnknownMigration = errors.New("unknown migrate command")

func Migrate(ctx context.Context, cfg config.Config, cmd string, version int64) error {
	if cfg.Database.WriteDSN == "" {
		return errors.New("db: WriteDSN is required")
	}

	pgxCfg, err := pgx.ParseConfig(cfg.Database.WriteDSN)
	if err != nil {
		return err
	}
	pgxCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*pgxCfg)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	const dir = "."
	actions := map[string]func() error{
		"up":      func() error { return goose.UpContext(ctx, db, dir) },
		"down":    func() error { return goose.DownContext(ctx, db, dir) },
		"status":  func() error { return goose.StatusContext(ctx, db, dir) },
		"version": func() error { return goose.VersionContext(ctx, db, dir) },
		"redo":    func() error { return goose.RedoContext(ctx, db, dir) },
		"reset":   func() error { return goose.ResetContext(ctx, db, dir) },
		"up-to":   func() error { return goose.UpToContext(ctx, db, dir, version) },
		"down-to": func() error { return goose.DownToContext(ctx, db, dir, version) },
	}
	action, ok := actions[cmd]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMigration, cmd)
	}
	return action()
}
