package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/dispatch"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/lock"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/messaging"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/metrics"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds everything a watch cycle needs. Close releases the connections
// in reverse order of creation.
type App struct {
	DB       *persistence.DB
	Watcher  *usecase.Watcher
	Outbox   *usecase.Outbox
	Registry *prometheus.Registry

	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func BuildApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	start := time.Now()
	app := &App{Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.DB = conn
	app.closers = append(app.closers, conn.Close)
	log.Infof("bootstrap: db ready in %s", time.Since(start))

	source, err := persistence.NewSourceRepository(conn, cfg.Watcher.SourceTable, cfg.Watcher.IDColumn)
	if err != nil {
		app.Close()
		return nil, err
	}

	collector := metrics.NewCollector(app.Registry)

	sinks, err := buildSinks(ctx, cfg, log, app)
	if err != nil {
		app.Close()
		return nil, err
	}
	dispatcher := dispatch.New(sinks, log,
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithRateLimit(cfg.Dispatch.RateLimit, cfg.Dispatch.RateBurst),
		dispatch.WithMetrics(collector),
	)
	if !dispatcher.Enabled() {
		log.Warn("bootstrap: no downstream sinks configured, events stay NEW")
	}

	locker, err := buildLocker(cfg, conn, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	outboxRepo := persistence.NewOutboxRepository(conn)
	app.Watcher = usecase.NewWatcher(usecase.WatcherConfig{
		Name:          cfg.Watcher.Name,
		Env:           cfg.Env,
		DefaultTenant: cfg.Watcher.DefaultTenant,
		Tenants:       cfg.Watcher.Tenants,
		BatchSize:     cfg.Watcher.BatchSize,
		LockPrefix:    cfg.Lock.KeyPrefix,
	}, usecase.WatcherDeps{
		Store:      conn,
		Cursors:    persistence.NewCursorRepository(conn),
		Source:     source,
		Outbox:     outboxRepo,
		Audit:      persistence.NewAuditLogRepository(conn),
		Dispatcher: dispatcher,
		Locker:     locker,
		Builder:    usecase.NewEventBuilder(cfg.Watcher.EventType, cfg.Watcher.IDColumn),
		Metrics:    collector,
	}, log)
	app.Outbox = usecase.NewOutbox(outboxRepo, log)

	log.WithFields(logrus.Fields{
		"watcher": cfg.Watcher.Name,
		"tenants": cfg.Watcher.Tenants,
		"sinks":   len(sinks),
		"lock":    cfg.Lock.Driver,
	}).Infof("bootstrap: watcher ready in %s", time.Since(start))
	return app, nil
}

func openDB(ctx context.Context, cfg config.Config, log *logrus.Logger) (*persistence.DB, error) {
	conn, err := persistence.New(ctx, persistence.Config{
		WriteDSN:          cfg.Database.WriteDSN,
		ReadDSN:           cfg.Database.ReadDSN,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		SlowThreshold:     cfg.Database.SlowThreshold,
		Log:               log,
	})
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if cfg.Database.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
	}
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func buildSinks(ctx context.Context, cfg config.Config, log *logrus.Logger, app *App) ([]dispatch.Sink, error) {
	sinks := make([]dispatch.Sink, 0, len(cfg.Dispatch.URLs)+1)
	for _, rawURL := range cfg.Dispatch.URLs {
		sink, err := dispatch.NewHTTPSink(dispatch.HTTPSinkConfig{
			URL:        rawURL,
			AuthHeader: cfg.Dispatch.AuthHeader,
			AuthValue:  cfg.Dispatch.AuthValue,
			Timeout:    cfg.Dispatch.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("downstream %s: %w", dispatch.RedactURL(rawURL), err)
		}
		sinks = append(sinks, sink)
	}

	client, err := messaging.NewNATS(ctx, cfg.NATS)
	if err != nil {
		return nil, err
	}
	if client != nil {
		app.closers = append(app.closers, client.Close)
		sink, err := dispatch.NewNATSSink(client, client.Subject())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	if cfg.Dispatch.Breaker.Enabled {
		for i, sink := range sinks {
			sinks[i] = dispatch.WithBreaker(sink, dispatch.BreakerConfig{
				ConsecutiveFailures: cfg.Dispatch.Breaker.ConsecutiveFailures,
				OpenTimeout:         cfg.Dispatch.Breaker.OpenTimeout,
			}, log)
		}
	}
	return sinks, nil
}

func buildLocker(cfg config.Config, conn *persistence.DB, app *App) (repository.Locker, error) {
	var client goredislib.UniversalClient
	if cfg.Lock.Driver == lock.DriverRedis {
		if cfg.Redis.Addr == "" {
			return nil, errors.New("lock: redis driver needs redis.addr")
		}
		rc := goredislib.NewClient(&goredislib.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.closers = append(app.closers, func() { _ = rc.Close() })
		client = rc
	}

	sqlDB, err := conn.SQL()
	if err != nil {
		return nil, err
	}
	return lock.New(cfg.Lock.Driver, sqlDB, client, cfg.Lock.Expiry)
}
