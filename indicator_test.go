package main

import (
	"sync"
	"testing"
	"time"
)

type ledRecorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *ledRecorder) set(on bool) {
	r.mu.Lock()
	r.states = append(r.states, on)
	r.mu.Unlock()
}

func (r *ledRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.states))
	copy(out, r.states)
	return out
}

func TestIndicatorNilOutput(t *testing.T) {
	ind := newIndicator(nil)
	ind.connecting()
	ind.sensorFault()
	ind.solid()
	ind.off()
}

func TestIndicatorSolidThenOff(t *testing.T) {
	rec := &ledRecorder{}
	ind := newIndicator(rec.set)
	ind.solid()
	time.Sleep(20 * time.Millisecond)
	ind.off()

	states := rec.snapshot()
	if len(states) < 2 {
		t.Fatalf("expected at least on/off transitions, got %v", states)
	}
	if !states[0] {
		t.Errorf("first transition should turn the LED on, got %v", states)
	}
	if states[len(states)-1] {
		t.Errorf("LED should be off after off(), got %v", states)
	}
}

func TestIndicatorFaultBounded(t *testing.T) {
	rec := &ledRecorder{}
	ind := newIndicator(rec.set)
	ind.sensorFault()

	deadline := time.Now().Add(5 * time.Second)
	for {
		states := rec.snapshot()
		// faultBlinkToggles transitions plus the trailing off.
		if len(states) >= faultBlinkToggles+1 {
			if states[len(states)-1] {
				t.Errorf("fault pattern should end with the LED off, got %v", states)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fault pattern did not complete, saw %d transitions", len(states))
		}
		time.Sleep(10 * time.Millisecond)
	}

	// No further transitions once the bounded sequence finishes.
	n := len(rec.snapshot())
	time.Sleep(5 * faultBlinkPeriod)
	if got := len(rec.snapshot()); got != n {
		t.Errorf("fault pattern kept toggling after completion: %d -> %d transitions", n, got)
	}
}

func TestIndicatorPatternReplacement(t *testing.T) {
	rec := &ledRecorder{}
	ind := newIndicator(rec.set)
	ind.connecting()
	time.Sleep(10 * time.Millisecond)
	ind.solid()
	time.Sleep(10 * time.Millisecond)
	ind.off()

	states := rec.snapshot()
	if len(states) == 0 {
		t.Fatal("no LED transitions recorded")
	}
	if states[len(states)-1] {
		t.Errorf("LED should be off after off(), got %v", states)
	}
}
