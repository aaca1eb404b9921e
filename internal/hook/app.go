// Package hook orchestrates one invocation: normalize the raw input,
// authorize pre-execution tool events, record the event, and build the
// fail-open response envelope.
package hook

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/emiliopalmerini/cwatch/internal/config"
	"github.com/emiliopalmerini/cwatch/internal/storage"
	"github.com/emiliopalmerini/cwatch/internal/tracker"
)

// App holds the per-invocation dependencies: configuration, logger,
// clock, and the storage stack. It replaces any ambient global state;
// every component receives what it needs explicitly.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Clock   clock.Clock
	Store   *storage.Manager
	Tracker *tracker.Tracker
}

// New opens the backends and wires the pipeline. The secondary
// local store must open; a failure there is the one setup error worth
// reporting, and even it is converted into a degraded response by the
// caller rather than a crash.
func New(cfg *config.Config, logger *zap.Logger, clk clock.Clock) (*App, error) {
	if clk == nil {
		clk = clock.New()
	}

	secondary, err := storage.OpenSQLite(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	var primary storage.Backend
	if cfg.HasPrimary() {
		primary, err = storage.OpenTurso(cfg.DatabaseURL, cfg.AuthToken)
		if err != nil {
			// Fail open: run on the secondary alone.
			logger.Warn("primary backend unavailable", zap.Error(err))
			primary = nil
		}
	}

	store := storage.NewManager(storage.ManagerConfig{
		Primary:       primary,
		Secondary:     secondary,
		Timeout:       cfg.BackendTimeout,
		ProbePath:     cfg.ProbeStatePath(),
		ProbeInterval: cfg.HealthInterval,
		Clock:         clk,
		Logger:        logger,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Clock:   clk,
		Store:   store,
		Tracker: tracker.New(store, clk, logger),
	}, nil
}

// Close releases the storage backends.
func (a *App) Close() {
	a.Store.Close()
}

// NewLogger builds the invocation logger. Diagnostics go to stderr;
// stdout is reserved for the response envelope.
func NewLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
