package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/internal/output"
	"github.com/Aman-CERP/notesearch/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string
	var trace bool

	cmd := &cobra.Command{
		Use:   "watch <notes-dir>",
		Short: "Index a notes directory and keep it up to date",
		Long: `Index every note under <notes-dir>, then apply changes as files are
created, edited and removed. Stops on SIGINT or SIGTERM after in-flight writes
finish and the index is committed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := guard.NewMetrics(reg)

			if metricsAddr != "" {
				srv, err := serveMetrics(metricsAddr, reg, a.logger)
				if err != nil {
					return err
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(ctx)
				}()
			}

			return a.withGuard(cmd.Context(), metrics, func(ctx context.Context, g *guard.Guard) error {
				if err := traceWrites(ctx, g, cmd, trace); err != nil {
					return err
				}
				return a.watch(ctx, cmd, g, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Trace every index write to stderr")
	return cmd
}

func (a *app) watch(ctx context.Context, cmd *cobra.Command, g *guard.Guard, dir string) error {
	ix, err := a.newIndexer(g, dir)
	if err != nil {
		return err
	}

	stats, err := ix.IndexDir(ctx)
	if err != nil {
		return err
	}
	if err := printIndexStats(cmd.OutOrStdout(), ix.Root(), stats, false); err != nil {
		return err
	}

	window, err := a.cfg.DebounceWindow()
	if err != nil {
		return err
	}
	w, err := watcher.New(watcher.Options{
		DebounceWindow: window,
		Extensions:     a.cfg.Watch.Extensions,
		Ignore:         a.cfg.Watch.Ignore,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, ix.Root()) }()

	output.New(cmd.OutOrStdout()).Status("👀", fmt.Sprintf("Watching %s (Ctrl+C to stop)", ix.Root()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case werr, ok := <-w.Errors():
			if ok {
				a.logger.Warn("watcher_error", slog.String("error", werr.Error()))
			}
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if _, err := ix.Apply(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// serveMetrics starts an HTTP server exposing reg on /metrics.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics_server_started", slog.String("addr", srv.Addr))
	return srv, nil
}
