package cmd

import (
	"fmt"
	"log/slog"

	"github.com/denniswebb/fwkeeper/internal/clock"
	"github.com/denniswebb/fwkeeper/internal/config"
	"github.com/denniswebb/fwkeeper/internal/iptables"
	"github.com/denniswebb/fwkeeper/internal/logging"
	"github.com/denniswebb/fwkeeper/internal/netfilter"
	"github.com/denniswebb/fwkeeper/internal/persist"
	"github.com/denniswebb/fwkeeper/internal/render"
)

// app holds the operations built from one configuration. Save and restore
// share a guard so they never overlap.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	saver    *persist.Saver
	clearer  *persist.Clearer
	restorer *persist.Restorer
}

// host returns the kernel and command executor of the running system.
func host() (netfilter.Kernel, iptables.Executor) {
	return netfilter.NewSocketKernel(), iptables.NewExecutor()
}

func newApp(cfg config.Config, kernel netfilter.Kernel, executor iptables.Executor, observer persist.Observer) (*app, error) {
	logger := logging.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	var loader netfilter.ModuleLoader
	if cfg.Modprobe != "" {
		loader = &iptables.ModprobeLoader{
			Executor: executor,
			Binary:   cfg.Modprobe,
			Logger:   logger.With(slog.String("component", "modprobe")),
		}
	}

	walker := &render.Walker{
		Kernel:   kernel,
		Loader:   loader,
		Renderer: render.NewRenderer(cfg.CaptureLimit),
		Clock:    clock.RealClock{},
		Tool:     cfg.ToolName,
		Logger:   logger.With(slog.String("component", "walker")),
	}

	guard := persist.NewGuard()

	saver, err := persist.NewSaver(persist.SaverConfig{
		Root:       cfg.StorageRoot,
		TablesFile: cfg.TablesFile,
		Renderer:   walker,
		Guard:      guard,
		Observer:   observer,
		Logger:     logger.With(slog.String("component", "saver")),
	})
	if err != nil {
		return nil, fmt.Errorf("create saver: %w", err)
	}

	clearer, err := persist.NewClearer(persist.ClearerConfig{
		Kernel:     kernel,
		Loader:     loader,
		TablesFile: cfg.TablesFile,
		Observer:   observer,
		Logger:     logger.With(slog.String("component", "clearer")),
	})
	if err != nil {
		return nil, fmt.Errorf("create clearer: %w", err)
	}

	restorer, err := persist.NewRestorer(persist.RestorerConfig{
		Root:     cfg.StorageRoot,
		Clearer:  clearer,
		Replayer: iptables.NewReplayer(executor, logger.With(slog.String("component", "replayer"))),
		Guard:    guard,
		Observer: observer,
		Logger:   logger.With(slog.String("component", "restorer")),
	})
	if err != nil {
		return nil, fmt.Errorf("create restorer: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		saver:    saver,
		clearer:  clearer,
		restorer: restorer,
	}, nil
}

// loadApp loads the configuration and wires the operations against the host.
func loadApp(observer persist.Observer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	kernel, executor := host()
	return newApp(cfg, kernel, executor, observer)
}
