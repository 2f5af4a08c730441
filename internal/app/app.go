package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/labelsched/labelsched/internal/engine"
	"github.com/labelsched/labelsched/internal/executor"
	"github.com/labelsched/labelsched/internal/label"
	"github.com/labelsched/labelsched/internal/schedule"
	"github.com/labelsched/labelsched/internal/signals"
	"github.com/labelsched/labelsched/internal/types"
	"github.com/labelsched/labelsched/pkg/docker"
	"github.com/labelsched/labelsched/pkg/shutdown"
)

type App struct {
	config        *types.Config
	logger        *zap.Logger
	shutdown      *shutdown.Manager
	signalHandler *signals.Handler
	wg            sync.WaitGroup
}

func New(cfg *types.Config, logger *zap.Logger) *App {
	return &App{
		config:        cfg,
		logger:        logger,
		shutdown:      shutdown.NewManager(logger, cfg.Shutdown.Timeout),
		signalHandler: signals.NewHandler(logger),
	}
}

func (a *App) Run() error {
	a.logger.Info("Starting labelsched",
		zap.String("environment", a.config.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eval, err := schedule.NewEvaluator(a.config.Scheduler.Timezone)
	if err != nil {
		return err
	}
	a.logger.Info("Configured timezone for job scheduling",
		zap.String("timezone", eval.Location().String()),
	)

	// Fail fast when the daemon is unreachable at boot; retrying with
	// backoff only applies to a stream that was once established.
	client, err := docker.NewClient(&a.config.Docker, a.config.Exec.Shell, a.logger)
	if err != nil {
		return fmt.Errorf("docker connection: %w", err)
	}

	watcher := docker.NewWatcher(client, &a.config.Docker, a.logger)
	exec := executor.New(client, a.logger, a.config.Exec.Timeout)
	eng := engine.New(
		label.NewParser(a.config.Docker.LabelPrefix),
		eval,
		exec,
		watcher.Events(),
		a.config.Scheduler.TickInterval,
		a.logger,
	)

	// Start signal handler
	go a.signalHandler.Handle(ctx, func() {
		a.logger.Info("Received shutdown signal")
		a.shutdown.Initiate()
	})

	// Register cleanup tasks
	a.shutdown.RegisterTask("docker-client", client.Close)

	// The watcher exits with an error only when reconnect attempts are
	// exhausted; run with stale state indefinitely is not an option.
	errCh := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := watcher.Run(ctx); err != nil {
			errCh <- err
			a.shutdown.Initiate()
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		eng.Run(ctx)
	}()

	a.logger.Info("Scheduler service is running")

	// Wait for shutdown
	<-a.shutdown.Done()
	cancel()
	a.wg.Wait()

	if err := a.shutdown.Wait(context.Background()); err != nil {
		a.logger.Error("Shutdown sequence failed", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("runtime connection lost: %w", err)
	default:
	}

	a.logger.Info("Application shutdown complete")
	return nil
}
