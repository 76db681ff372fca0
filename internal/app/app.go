package app

import (
	"io"
	"log/slog"

	"github.com/seabeeberry/Graphite/internal/backend"
	"github.com/seabeeberry/Graphite/internal/catalog"
	"github.com/seabeeberry/Graphite/internal/compile"
	"github.com/seabeeberry/Graphite/internal/exec"
)

// App encapsulates the engine's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	catalog  *catalog.Catalog
	compiler *compile.Compiler
	executor *exec.Executor
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Extra operations
// are registered on top of the built-in catalog, so callers can extend the
// operation set without forking it.
func NewApp(outW io.Writer, cfg *Config, extra ...*catalog.Operation) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	cat := catalog.Builtin()
	for _, op := range extra {
		if err := cat.Register(op); err != nil {
			return nil, err
		}
	}
	logger.Debug("Operation catalog ready.", "extra_operations", len(extra))

	execOpts := []exec.Option{exec.WithWorkers(cfg.Workers)}
	if cfg.Backend != "" {
		be, err := backend.Get(cfg.Backend)
		if err != nil {
			return nil, err
		}
		execOpts = append(execOpts, exec.WithBackend(be))
		logger.Debug("Backend selected by configuration.", "backend", be.Name())
	}
	executor := exec.New(execOpts...)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		catalog:  cat,
		compiler: compile.New(cat),
		executor: executor,
	}, nil
}

// Executor returns the engine's executor. This is primarily for testing.
func (a *App) Executor() *exec.Executor {
	return a.executor
}
