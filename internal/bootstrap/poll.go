package bootstrap

import (
	"context"
	"fmt"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
)

// Poll runs a single cycle outside the HTTP server, for cron-style schedulers.
func Poll(ctx context.Context, cfg config.Config, req entity.CycleRequest) (entity.CycleResult, error) {
	if cfg.Database.WriteDSN == "" {
		return entity.CycleResult{}, fmt.Errorf("%w: missing database.write_dsn", config.ErrIncomplete)
	}
	if err := cfg.ValidateLockPool(); err != nil {
		return entity.CycleResult{}, err
	}
	log, err := BuildLogger(cfg)
	if err != nil {
		return entity.CycleResult{}, err
	}
	app, err := BuildApp(ctx, cfg, log)
	if err != nil {
		return entity.CycleResult{}, err
	}
	defer app.Close()

	return app.Watcher.RunCycle(ctx, req)
}
