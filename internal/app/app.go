package app

import (
	"io"
	"log/slog"

	"github.com/vk/metalus/internal/application"
	"github.com/vk/metalus/internal/steps"
)

// Config holds everything an App instance needs to run.
type Config struct {
	ApplicationPath string
	ApplicationJSON string
	Loader          string
	LogFormat       string
	LogLevel        string
	WorkerCount     int
	Strict          bool
}

// App encapsulates the driver's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *steps.Registry
	app      *application.Application
	driver   application.DriverParams
}

// NewApp constructs the driver: an isolated logger, a registry populated
// from the given modules (core modules when none are passed), and the
// parsed application.
func NewApp(outW io.Writer, cfg *Config, modules ...steps.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	registry := steps.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(registry)
	}
	logger.Debug("All step modules registered.", "count", len(modules))

	driver := application.DriverParams{
		ApplicationJSON: cfg.ApplicationJSON,
		ApplicationPath: cfg.ApplicationPath,
		Loader:          cfg.Loader,
	}
	parsed, err := driver.Load()
	if err != nil {
		return nil, err
	}
	logger.Debug("Application configuration loaded.",
		"executions", len(parsed.Executions), "pipelines", len(parsed.Pipelines))

	return &App{
		outW:     outW,
		logger:   logger,
		registry: registry,
		app:      parsed,
		driver:   driver,
	}, nil
}

// Registry exposes the application's registry, primarily for testing.
func (a *App) Registry() *steps.Registry {
	return a.registry
}
