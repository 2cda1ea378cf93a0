package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	mid "Tradeflow/internal/middleware"
	"Tradeflow/internal/usecase"
	"Tradeflow/pkg/config"
	xhttp "Tradeflow/pkg/http"
	pkgkafka "Tradeflow/pkg/kafka"
	"Tradeflow/pkg/logger"
)

// App runs the phase worker, the HTTP/WebSocket server and, in stream mode,
// the live bar consumer.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	phases     *usecase.PhaseService
	pipeline   *mid.EventPipeline
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
}

type Option func(*App)

// WithConsumer runs c next to the server.
func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func New(
	cfg *config.Config,
	l *logger.Logger,
	phases *usecase.PhaseService,
	pipeline *mid.EventPipeline,
	httpServer *xhttp.Server,
	opts ...Option,
) *App {
	a := &App{
		cfg:        cfg,
		logger:     l,
		phases:     phases,
		pipeline:   pipeline,
		httpServer: httpServer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks until ctx ends or SIGINT/SIGTERM arrives. The event pipeline
// outlives the workers so queued events are still published on shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.pipeline.Start(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.phases.Run(gctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Run(gctx, a.cfg.Server.ShutdownTimeout); err != nil {
				return fmt.Errorf("bar consumer: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})

	a.logger.Info("tradeflow started",
		logger.String("env", a.cfg.Environment),
		logger.String("symbol", a.cfg.Engine.Symbol),
		logger.String("bar_source", a.cfg.BarSource.Type),
		logger.Bool("bar_consumer", a.consumer != nil),
	)

	err := g.Wait()
	a.logger.Info("shutting down")
	a.pipeline.Stop()
	if err != nil {
		a.logger.Error("stopped with error", logger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
