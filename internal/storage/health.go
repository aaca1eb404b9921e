package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// probeState is the on-disk health cache. Hook invocations are
// short-lived separate processes, so the cached probe result lives in a
// small JSON file next to the local database rather than in memory.
type probeState struct {
	CheckedAt time.Time `json:"checked_at"`
	Healthy   bool      `json:"healthy"`
}

// healthProbe gates every primary call. Within the cache interval the
// stored result is trusted; outside it the backend is pinged once and
// the result written back. A failed probe marks the primary unhealthy
// until the next window.
type healthProbe struct {
	path     string
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

func newHealthProbe(path string, interval, timeout time.Duration, clk clock.Clock, logger *zap.Logger) *healthProbe {
	return &healthProbe{
		path:     path,
		interval: interval,
		timeout:  timeout,
		clock:    clk,
		logger:   logger,
	}
}

// Check reports whether the primary should be attempted right now.
func (h *healthProbe) Check(ctx context.Context, backend Backend) bool {
	if state := h.load(); state != nil {
		if h.clock.Now().Sub(state.CheckedAt) < h.interval {
			return state.Healthy
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := backend.Ping(probeCtx)
	healthy := err == nil
	if err != nil {
		h.logger.Warn("primary health probe failed",
			zap.String("backend", backend.Name()),
			zap.Error(err),
		)
	}

	h.store(healthy)
	return healthy
}

// MarkUnhealthy records a failure observed outside the probe itself,
// so subsequent invocations skip the primary for the rest of the
// window.
func (h *healthProbe) MarkUnhealthy() {
	h.store(false)
}

func (h *healthProbe) load() *probeState {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}
	var state probeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil
	}
	return &state
}

func (h *healthProbe) store(healthy bool) {
	state := probeState{CheckedAt: h.clock.Now(), Healthy: healthy}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return
	}
	// Best effort: a lost probe cache only costs one extra ping.
	_ = os.WriteFile(h.path, data, 0o644)
}
