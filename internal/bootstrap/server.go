package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/transport/http/handlers"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func Run(ctx context.Context, cfg config.Config) error {
	log, err := BuildLogger(cfg)
	if err != nil {
		return err
	}

	var (
		watcher  service.WatcherService
		outbox   service.OutboxService
		store    repository.Store
		gatherer prometheus.Gatherer
	)
	if err := cfg.Validate(); err != nil {
		// Keep /healthz up so the platform can see the process; /poll answers 500.
		log.WithError(err).Error("bootstrap: serving without a watcher")
		gatherer = prometheus.NewRegistry()
	} else {
		app, err := BuildApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()
		watcher, outbox, store, gatherer = app.Watcher, app.Outbox, app.DB, app.Registry
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(log), gin.Recovery())
	handler := handlers.NewHandler(watcher, outbox, store, cfg.Server.PollTimeout)
	handlers.NewRouter(handler).RegisterRoutes(router, middleware.AgentKey(cfg.Watcher.AgentKey), gatherer)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("bootstrap: server listening on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	return nil
}
