package main

import (
	"log/slog"
	"time"
)

const (
	minCycleDelay     = time.Second
	cycleSlice        = 5 * time.Second
	deepSleepOverhead = 2 * time.Second
)

// nextCycleDelay returns how long to wait before the next measurement
// cycle given how long this one took. The delay never drops below
// minCycleDelay so a slow cycle cannot starve the system of idle time.
func nextCycleDelay(interval, elapsed time.Duration) time.Duration {
	d := interval - elapsed
	if d < minCycleDelay {
		return minCycleDelay
	}
	return d
}

// waitCycle idles between measurement cycles on external power. It
// wakes early on a refresh request and calls feed often enough to keep
// an 8 second watchdog alive.
func waitCycle(duration time.Duration, refresh <-chan struct{}, feed func(), logger *slog.Logger) {
	check := cycleSlice
	if duration < check {
		check = duration
	}
	elapsed := time.Duration(0)

	for elapsed < duration {
		feed()
		select {
		case <-refresh:
			logger.Info("cycle:manual-refresh")
			return
		case <-time.After(check):
			elapsed += check
		}
	}
}
