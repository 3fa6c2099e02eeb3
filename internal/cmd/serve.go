package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/denniswebb/fwkeeper/internal/config"
	"github.com/denniswebb/fwkeeper/internal/k8s"
	"github.com/denniswebb/fwkeeper/internal/metrics"
	"github.com/denniswebb/fwkeeper/internal/persist"
)

// ServeCmd saves periodically and serves metrics and health.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Save the rule tables periodically and expose /metrics and /healthz",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		m := metrics.NewMetrics(nil)
		health := metrics.NewHealthChecker()
		kernel, executor := host()
		a, err := newApp(cfg, kernel, executor, persist.Observers{m, health})
		if err != nil {
			return err
		}

		var handlers []persist.SaveHandler
		if cfg.PublishEnabled() {
			clientset, err := k8s.NewInClusterClient()
			if err != nil {
				return fmt.Errorf("create kubernetes client: %w", err)
			}
			handlers = append(handlers, k8s.NewPublisher(clientset, cfg.ConfigMapNamespace, cfg.ConfigMapName,
				a.logger.With(slog.String("component", "publisher"))))
		}

		scheduler, err := persist.NewScheduler(persist.SchedulerConfig{
			Saver:    a.saver,
			Interval: cfg.SaveInterval,
			Logger:   a.logger.With(slog.String("component", "scheduler")),
			Handlers: handlers,
		})
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return serve(ctx, a.logger, cfg.ListenAddress, newServeMux(m, health), scheduler)
	},
}

func init() {
	ServeCmd.Flags().Duration("save-interval", config.DefaultSaveInterval, "Interval between periodic saves")
	ServeCmd.Flags().String("listen-address", config.DefaultListenAddress, "Address of the metrics and health listener")
	ServeCmd.Flags().String("configmap-namespace", "", "Namespace of the ConfigMap saves are published to")
	ServeCmd.Flags().String("configmap-name", "", "Name of the ConfigMap saves are published to")
	bindFlags(ServeCmd, false, "save-interval", "listen-address", "configmap-namespace", "configmap-name")
}

func newServeMux(m *metrics.Metrics, health *metrics.HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health.Handler())
	return mux
}

// serve runs the scheduler and the HTTP listener until ctx is done, then
// shuts the listener down.
func serve(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler, scheduler *persist.Scheduler) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	logger.Info("serve started", slog.String("listen_address", addr))

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			logger.Error("metrics listener failed", slog.Any("error", err))
			err = fmt.Errorf("listen on %s: %w", addr, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("metrics listener shutdown failed", slog.Any("error", shutdownErr))
	}

	stop()
	<-done
	logger.Info("serve shutdown complete")
	return err
}
