package main

import (
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutiveFailures = 5
	maxTimeWithoutUpload   = 2 * time.Hour
)

// healthMonitor decides whether the hardware watchdog keeps getting
// fed. Once unhealthy it stays unhealthy; the watchdog timeout then
// resets the device.
type healthMonitor struct {
	mu          sync.Mutex
	feed        func()
	log         *slog.Logger
	lastSuccess time.Time
	failures    int
	healthy     bool
}

func newHealthMonitor(feed func(), logger *slog.Logger) *healthMonitor {
	return &healthMonitor{
		feed:        feed,
		log:         logger,
		lastSuccess: time.Now(),
		healthy:     true,
	}
}

// Feed updates the watchdog only while the system is healthy.
func (h *healthMonitor) Feed() {
	h.mu.Lock()
	ok := h.healthy
	h.mu.Unlock()
	if ok && h.feed != nil {
		h.feed()
	}
}

func (h *healthMonitor) Success() {
	h.mu.Lock()
	h.failures = 0
	h.lastSuccess = time.Now()
	h.mu.Unlock()
}

// Failure records a failed cycle and re-evaluates health.
func (h *healthMonitor) Failure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.log.Warn("watchdog:failure-count",
		slog.Int("consecutive", h.failures),
		slog.Int("max", maxConsecutiveFailures),
	)
	if h.failures >= maxConsecutiveFailures {
		h.log.Error("watchdog:unhealthy",
			slog.String("reason", "max consecutive failures"),
			slog.Int("failures", h.failures),
		)
		h.healthy = false
		return
	}
	if since := time.Since(h.lastSuccess); since >= maxTimeWithoutUpload {
		h.log.Error("watchdog:unhealthy",
			slog.String("reason", "max time without upload"),
			slog.Duration("since", since),
		)
		h.healthy = false
	}
}

func (h *healthMonitor) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

// MarkUnhealthy stops watchdog feeding unconditionally, used by fatal
// error paths that want a hardware reset.
func (h *healthMonitor) MarkUnhealthy() {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()
}
