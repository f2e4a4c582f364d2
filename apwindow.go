package main

import (
	"log/slog"
	"time"
)

const (
	apWindowDuration = 300 * time.Second
	apWindowPoll     = 5 * time.Second
)

// fallbackWindow supervises the access point configuration window.
// The node restarts either when the stored SSID changes, meaning the
// portal accepted new credentials, or when the window elapses so a
// transient outage does not strand the node in setup mode forever.
type fallbackWindow struct {
	window   time.Duration
	poll     time.Duration
	readSSID func() (string, error)
	restart  func(reason string)
	sleep    func(time.Duration)
	now      func() time.Time
	feed     func()
}

func newFallbackWindow(readSSID func() (string, error), restart func(reason string), feed func()) *fallbackWindow {
	return &fallbackWindow{
		window:   apWindowDuration,
		poll:     apWindowPoll,
		readSSID: readSSID,
		restart:  restart,
		sleep:    time.Sleep,
		now:      time.Now,
		feed:     feed,
	}
}

// run blocks until a restart is triggered. It only returns after
// calling restart, which on hardware never returns at all.
func (w *fallbackWindow) run(logger *slog.Logger) {
	start := w.now()
	initial, err := w.readSSID()
	if err != nil {
		logger.Warn("apwindow:read-failed", slog.String("err", err.Error()))
	}
	logger.Info("apwindow:open",
		slog.Duration("window", w.window),
		slog.String("ssid", initial),
	)

	for {
		w.feed()
		w.sleep(w.poll)

		current, err := w.readSSID()
		if err != nil {
			logger.Warn("apwindow:read-failed", slog.String("err", err.Error()))
		} else if current != initial {
			logger.Info("apwindow:reconfigured", slog.String("ssid", current))
			w.restart("reconfigured")
			return
		}

		if w.now().Sub(start) >= w.window {
			logger.Info("apwindow:elapsed")
			w.restart("window elapsed")
			return
		}
	}
}
