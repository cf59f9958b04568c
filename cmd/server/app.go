package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gregoryb/recordscrape/internal/config"
	"github.com/gregoryb/recordscrape/internal/pool"
	"github.com/gregoryb/recordscrape/internal/scrape"
	"github.com/gregoryb/recordscrape/internal/session"
	"github.com/gregoryb/recordscrape/internal/task"
)

// application holds the wired components and owns their lifecycles.
type application struct {
	config *config.Config
	logger *slog.Logger

	factory     *session.Factory
	sessionPool *pool.Pool
	manager     *task.Manager
}

// newApplication wires the browser session factory, the session pool,
// the scraper work function and the task manager.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	factory := session.NewFactory(cfg.Browser, logger)

	sessionPool := pool.New(factory, pool.Config{
		MaxSize:        cfg.Pool.MaxSize,
		Floor:          cfg.Pool.Floor,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		IdleAge:        cfg.Pool.IdleAge,
		ReapInterval:   cfg.Pool.ReapInterval,
	}, logger)

	scraper := scrape.NewScraper(cfg.Browser, logger)

	store := task.NewStore()
	managerCfg := task.DefaultManagerConfig()
	managerCfg.WorkerCount = cfg.Engine.WorkerCount
	managerCfg.QueueSize = cfg.Engine.QueueSize
	managerCfg.ReaperInterval = cfg.Engine.ReaperInterval
	managerCfg.RetentionWindow = cfg.Engine.RetentionWindow
	managerCfg.OrphanThreshold = cfg.Engine.OrphanThreshold
	managerCfg.HeartbeatInterval = cfg.Engine.HeartbeatInterval

	manager := task.NewManager(store, sessionPool, scraper.WorkFunc(), managerCfg, logger)
	manager.Start()

	return &application{
		config:      cfg,
		logger:      logger,
		factory:     factory,
		sessionPool: sessionPool,
		manager:     manager,
	}, nil
}

// cleanup stops the task engine and tears down the browser process.
// The manager's shutdown drains the session pool, so the factory goes
// last.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	app.manager.Shutdown(ctx)
	app.factory.Close()
	app.logger.Info("Application cleanup completed")
}

// run serves HTTP until the context is canceled.
func (app *application) run(ctx context.Context) error {
	return app.startHTTPServer(ctx, app.setupRouter())
}

// shutdownTimeout returns the configured shutdown grace period with a
// sane fallback.
func (app *application) shutdownTimeout() time.Duration {
	if t := app.config.Server.ShutdownTimeout; t > 0 {
		return t
	}
	return 10 * time.Second
}
