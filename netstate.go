package main

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// connState tracks where the node is in its network lifecycle.
type connState uint8

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateAPFallback
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateAPFallback:
		return "ap-fallback"
	default:
		return "unknown"
	}
}

var (
	errJoinTimeout    = errors.New("wifi: join timed out")
	errInterfaceFault = errors.New("wifi: interface fault")
)

// connectError wraps the last error seen once every join attempt has
// been spent.
type connectError struct {
	attempts int
	last     error
}

func (e *connectError) Error() string {
	if e.last == nil {
		return "wifi: connect failed"
	}
	return "wifi: connect failed: " + e.last.Error()
}

func (e *connectError) Unwrap() error { return e.last }

// station is the WiFi hardware boundary.
type station interface {
	Connected() bool
	// Join issues an association request. It may return before the
	// link is up; callers poll Connected.
	Join(ssid, passphrase string) error
	Leave() error
	// Reset disables and re-enables the interface, clearing driver
	// state after an unrecoverable fault.
	Reset() error
}

type connectPolicy struct {
	maxAttempts    int
	attemptTimeout time.Duration
	pollInterval   time.Duration
	resetSettle    time.Duration
	sleep          func(time.Duration)
}

func defaultConnectPolicy() connectPolicy {
	return connectPolicy{
		maxAttempts:    3,
		attemptTimeout: 30 * time.Second,
		pollInterval:   500 * time.Millisecond,
		resetSettle:    2 * time.Second,
		sleep:          time.Sleep,
	}
}

// transientFault reports whether the driver failed in a way that a
// full interface reset can clear. The CYW43439 driver surfaces these
// as unclassified errors.
func transientFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errInterfaceFault) {
		return true
	}
	return strings.Contains(err.Error(), "unknown error")
}

// connectStation runs the bounded join loop. The indicator blinks for
// the whole window and is turned off before returning regardless of
// outcome. A transient driver fault triggers an interface reset before
// the next attempt.
func connectStation(dev station, ssid, passphrase string, pol connectPolicy, ind *indicator, logger *slog.Logger) error {
	if ind != nil {
		ind.connecting()
		defer ind.off()
	}

	var lastErr error
	joinPending := false
	for attempt := 1; attempt <= pol.maxAttempts; attempt++ {
		logger.Info("wifi:join-attempt",
			slog.String("ssid", ssid),
			slog.Int("attempt", attempt),
			slog.Int("max", pol.maxAttempts),
		)

		if joinPending && !dev.Connected() {
			if err := dev.Leave(); err != nil {
				logger.Warn("wifi:leave-failed", slog.String("err", err.Error()))
			}
			joinPending = false
		}
		if transientFault(lastErr) {
			logger.Warn("wifi:interface-reset", slog.String("cause", lastErr.Error()))
			if err := dev.Reset(); err != nil {
				logger.Error("wifi:reset-failed", slog.String("err", err.Error()))
			}
			pol.sleep(pol.resetSettle)
		}

		err := dev.Join(ssid, passphrase)
		if err != nil {
			logger.Warn("wifi:join-failed", slog.String("err", err.Error()))
			lastErr = err
			continue
		}
		joinPending = true

		if waitConnected(dev, pol) {
			logger.Info("wifi:connected", slog.String("ssid", ssid))
			return nil
		}
		lastErr = errJoinTimeout
		logger.Warn("wifi:join-timeout", slog.Duration("timeout", pol.attemptTimeout))
	}
	return &connectError{attempts: pol.maxAttempts, last: lastErr}
}

func waitConnected(dev station, pol connectPolicy) bool {
	waited := time.Duration(0)
	for waited < pol.attemptTimeout {
		if dev.Connected() {
			return true
		}
		pol.sleep(pol.pollInterval)
		waited += pol.pollInterval
	}
	return dev.Connected()
}

// ensureConnected re-runs the join loop only when the link is down. It
// is safe to call before every upload.
func ensureConnected(dev station, ssid, passphrase string, pol connectPolicy, ind *indicator, logger *slog.Logger) error {
	if dev.Connected() {
		return nil
	}
	logger.Warn("wifi:link-lost", slog.String("ssid", ssid))
	return connectStation(dev, ssid, passphrase, pol, ind, logger)
}
