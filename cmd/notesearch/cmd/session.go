package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/internal/store"
)

// newHolder builds the process-wide guard holder from configuration.
// The guard is opened on first use.
func (a *app) newHolder(metrics *guard.Metrics) (*guard.Holder, error) {
	factory, err := store.NewFactory(a.cfg.Index.Backend)
	if err != nil {
		return nil, err
	}
	timeout, err := a.cfg.AcquireTimeout()
	if err != nil {
		return nil, err
	}

	logger := a.logger.With(slog.String("backend", a.cfg.Index.Backend))
	opts := []guard.Option{
		guard.WithPermits(a.cfg.Index.Permits),
		guard.WithLogger(logger),
		guard.WithAcquireTimeout(timeout),
		guard.WithMetrics(metrics),
	}
	gcfg := guard.Config{
		UserDir:  a.cfg.Index.UserDir,
		Analysis: a.cfg.Analysis(),
	}

	return guard.NewHolder(func() (*guard.Guard, error) {
		return guard.Open(gcfg, factory, opts...)
	}), nil
}

// withGuard opens the guard, runs fn and closes the guard. SIGINT and
// SIGTERM cancel ctx and close the guard, which waits for operations already
// holding a permit and rejects the rest.
func (a *app) withGuard(ctx context.Context, metrics *guard.Metrics, fn func(ctx context.Context, g *guard.Guard) error) error {
	holder, err := a.newHolder(metrics)
	if err != nil {
		return err
	}
	defer func() { _ = holder.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shutdown hook: close as soon as a signal arrives, not after fn returns.
	stopHook := context.AfterFunc(ctx, func() {
		a.logger.Info("shutdown_requested")
		_ = holder.Close()
	})
	defer stopHook()

	g, err := holder.Instance()
	if err != nil {
		return err
	}
	return fn(ctx, g)
}
