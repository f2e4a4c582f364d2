package main

import (
	"sync"
	"time"
)

const (
	connectBlinkPeriod = 500 * time.Millisecond
	faultBlinkPeriod   = 100 * time.Millisecond
	faultBlinkToggles  = 10
)

// indicator drives the status LED. Each pattern method stops the
// pattern goroutine currently running before starting its own, so at
// most one goroutine ever owns the output. The set function may be nil
// when no LED is fitted; every method is then a no-op.
type indicator struct {
	mu   sync.Mutex
	set  func(on bool)
	stop chan struct{}
	done chan struct{}
}

func newIndicator(set func(on bool)) *indicator {
	return &indicator{set: set}
}

// connecting blinks slowly until another pattern replaces it.
func (ind *indicator) connecting() {
	ind.start(func(stop <-chan struct{}, set func(bool)) {
		on := false
		for {
			on = !on
			set(on)
			select {
			case <-stop:
				set(false)
				return
			case <-time.After(connectBlinkPeriod):
			}
		}
	})
}

// sensorFault blinks fast for a bounded number of toggles and leaves
// the LED off. It returns once the sequence is scheduled, not once it
// completes.
func (ind *indicator) sensorFault() {
	ind.start(func(stop <-chan struct{}, set func(bool)) {
		on := false
		for i := 0; i < faultBlinkToggles; i++ {
			on = !on
			set(on)
			select {
			case <-stop:
				set(false)
				return
			case <-time.After(faultBlinkPeriod):
			}
		}
		set(false)
	})
}

// solid holds the LED on, used while the configuration access point is
// active.
func (ind *indicator) solid() {
	ind.start(func(stop <-chan struct{}, set func(bool)) {
		set(true)
		<-stop
		set(false)
	})
}

func (ind *indicator) off() {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.halt()
	if ind.set != nil {
		ind.set(false)
	}
}

func (ind *indicator) start(pattern func(stop <-chan struct{}, set func(bool))) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	ind.halt()
	if ind.set == nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	ind.stop = stop
	ind.done = done
	go func() {
		defer close(done)
		pattern(stop, ind.set)
	}()
}

// halt signals the running pattern and waits for it to release the
// output. Callers hold ind.mu.
func (ind *indicator) halt() {
	if ind.stop == nil {
		return
	}
	close(ind.stop)
	<-ind.done
	ind.stop = nil
	ind.done = nil
}
