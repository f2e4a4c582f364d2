package main

import (
	"errors"
	"testing"
	"time"
)

func testWindow(readSSID func() (string, error)) (*fallbackWindow, *string) {
	var reason string
	w := newFallbackWindow(readSSID, func(r string) { reason = r }, func() {})
	w.sleep = func(time.Duration) {}
	return w, &reason
}

func TestFallbackWindowRestartOnReconfigure(t *testing.T) {
	polls := 0
	w, reason := testWindow(func() (string, error) {
		polls++
		if polls > 3 {
			return "newnet", nil
		}
		return "oldnet", nil
	})
	w.run(discardLogger())
	if *reason != "reconfigured" {
		t.Errorf("restart reason = %q, want reconfigured", *reason)
	}
}

func TestFallbackWindowElapses(t *testing.T) {
	now := time.Now()
	w, reason := testWindow(func() (string, error) { return "same", nil })
	w.now = func() time.Time {
		now = now.Add(w.poll)
		return now
	}
	w.run(discardLogger())
	if *reason != "window elapsed" {
		t.Errorf("restart reason = %q, want window elapsed", *reason)
	}
}

func TestFallbackWindowToleratesReadErrors(t *testing.T) {
	polls := 0
	w, reason := testWindow(func() (string, error) {
		polls++
		switch {
		case polls < 3:
			return "oldnet", nil
		case polls < 6:
			return "", errors.New("flash busy")
		default:
			return "newnet", nil
		}
	})
	w.run(discardLogger())
	if *reason != "reconfigured" {
		t.Errorf("restart reason = %q, want reconfigured after transient read errors", *reason)
	}
	if polls < 6 {
		t.Errorf("polls = %d, read errors should not end the window", polls)
	}
}

func TestFallbackWindowFeedsWatchdog(t *testing.T) {
	feeds := 0
	w, _ := testWindow(func() (string, error) { return "x", nil })
	w.feed = func() { feeds++ }
	now := time.Now()
	w.now = func() time.Time {
		now = now.Add(w.window / 4)
		return now
	}
	w.run(discardLogger())
	if feeds == 0 {
		t.Error("watchdog never fed during the window")
	}
}
