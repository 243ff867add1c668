// Copyright (C) 2025 Horia73
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package engine

import (
	"sync"
	"testing"
	"time"
)

// switchRecorder records every on/off command sent to an actuator.
type switchRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *switchRecorder) Switch(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, on)
	return nil
}

func (r *switchRecorder) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return false, false
	}
	return r.calls[len(r.calls)-1], true
}

func (r *switchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestCoordinatorOnDelay(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("living", 30*time.Second, 60*time.Second)

	clock.Advance(29 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("commanded before on-delay elapsed: %v", rec.calls)
	}

	clock.Advance(time.Second)
	if on, ok := rec.last(); !ok || !on {
		t.Fatalf("expected on command after 30s, got %v", rec.calls)
	}
	if !coord.CommandedOn() {
		t.Fatal("CommandedOn should be true")
	}
}

func TestCoordinatorZeroOnDelayIsImmediate(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("living", 0, 60*time.Second)
	if on, ok := rec.last(); !ok || !on {
		t.Fatalf("expected immediate on, got %v", rec.calls)
	}
}

func TestCoordinatorDemandGoneBeforeOnDelay(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("living", 30*time.Second, 60*time.Second)
	clock.Advance(10 * time.Second)
	coord.Deregister("living")

	clock.Advance(10 * time.Minute)
	if rec.count() != 0 {
		t.Fatalf("source should never have been commanded: %v", rec.calls)
	}
}

func TestCoordinatorOffDelayAndCancel(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("living", 0, 60*time.Second)
	coord.Deregister("living")

	// new demand inside the off-delay keeps the source running
	clock.Advance(30 * time.Second)
	coord.Register("living", 0, 60*time.Second)
	clock.Advance(10 * time.Minute)

	if on, _ := rec.last(); !on {
		t.Fatalf("source should still be on, got %v", rec.calls)
	}
	if rec.count() != 1 {
		t.Fatalf("source should not have cycled: %v", rec.calls)
	}

	// demand gone for the full off-delay turns it off
	coord.Deregister("living")
	clock.Advance(59 * time.Second)
	if on, _ := rec.last(); !on {
		t.Fatal("commanded off before off-delay elapsed")
	}
	clock.Advance(time.Second)
	if on, _ := rec.last(); on {
		t.Fatalf("expected off after 60s, got %v", rec.calls)
	}
}

func TestCoordinatorZeroOffDelayIsImmediate(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("living", 0, 0)
	coord.Deregister("living")
	if on, ok := rec.last(); !ok || on {
		t.Fatalf("expected immediate off, got %v", rec.calls)
	}
}

func TestCoordinatorSharedByTwoZones(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("a", 0, 60*time.Second)
	coord.Register("b", 0, 60*time.Second)

	// one zone stopping does not release the source
	coord.Deregister("a")
	clock.Advance(10 * time.Minute)
	if on, _ := rec.last(); !on {
		t.Fatal("source released while zone b still demands heat")
	}

	coord.Deregister("b")
	clock.Advance(60 * time.Second)
	if on, _ := rec.last(); on {
		t.Fatal("source should be off after last demand and off-delay")
	}
}

func TestCoordinatorUsesLongestOffDelay(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("a", 0, 60*time.Second)
	coord.Register("b", 0, 120*time.Second)
	coord.Deregister("a")
	coord.Deregister("b")

	clock.Advance(60 * time.Second)
	if on, _ := rec.last(); !on {
		t.Fatal("off fired at the shorter delay")
	}
	clock.Advance(60 * time.Second)
	if on, _ := rec.last(); on {
		t.Fatal("off should have fired at the longest registered delay")
	}
}

func TestCoordinatorShutdownLeavesLastCommandedState(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("a", 0, 60*time.Second)
	if on, ok := rec.last(); !ok || !on {
		t.Fatalf("source should be on before shutdown: %v", rec.calls)
	}

	coord.Shutdown()
	if rec.count() != 1 {
		t.Fatalf("shutdown must not force-toggle the source: %v", rec.calls)
	}
	if on, _ := rec.last(); !on {
		t.Fatal("source must stay in its last commanded state")
	}
	clock.Advance(10 * time.Minute)
	if rec.count() != 1 {
		t.Fatalf("no command may fire after shutdown: %v", rec.calls)
	}
	if coord.HasDemand() {
		t.Fatal("shutdown must clear demand")
	}
}

func TestCoordinatorShutdownCancelsPendingOff(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	coord := newCoordinator("central", rec.Switch, clock)

	coord.Register("a", 0, 60*time.Second)
	coord.Deregister("a")
	coord.Shutdown()

	clock.Advance(10 * time.Minute)
	if on, _ := rec.last(); !on {
		t.Fatalf("cancelled off-timer must not fire after shutdown: %v", rec.calls)
	}
}

func TestCoordinatorRegistryDeduplicates(t *testing.T) {
	clock := newFakeClock()
	rec := &switchRecorder{}
	reg := NewCoordinatorRegistry(clock)

	a := reg.Acquire("central", rec.Switch)
	b := reg.Acquire("central", rec.Switch)
	if a != b {
		t.Fatal("same reference must share one coordinator")
	}
	other := reg.Acquire("other", rec.Switch)
	if other == a {
		t.Fatal("different references must not share a coordinator")
	}
}
