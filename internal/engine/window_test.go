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
	"testing"
	"time"
)

func newTestDetector() (*windowDetector, time.Time) {
	w := &windowDetector{enabled: true, threshold: 3.0}
	return w, time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
}

func TestWindowDetectorConfirmsByTotalDrop(t *testing.T) {
	w, t0 := newTestDetector()

	// 0.1 degC/min is -6 degC/h, well past a 3 degC/h threshold
	w.observe(21.0, t0)
	w.observe(20.9, t0.Add(1*time.Minute))
	if w.alert(t0.Add(1 * time.Minute)) {
		t.Fatal("one steep sample must only open a candidate")
	}

	w.observe(20.8, t0.Add(2*time.Minute))
	now := t0.Add(2 * time.Minute)
	if !w.alert(now) {
		t.Fatal("0.2 degC total drop must confirm the alert")
	}
	if !w.blockHeating(now) {
		t.Fatal("an active alert must block heating")
	}
}

func TestWindowDetectorConfirmsBySustainedSlope(t *testing.T) {
	w, t0 := newTestDetector()

	// slow but sustained: the slope stays at -1.8 degC/h, past half
	// the threshold, without ever reaching the total-drop trigger
	w.observe(21.0, t0)
	w.observe(20.95, t0.Add(1*time.Minute)) // candidate at -3/h
	w.observe(20.92, t0.Add(2*time.Minute))
	w.observe(20.89, t0.Add(3*time.Minute))
	if !w.alert(t0.Add(3 * time.Minute)) {
		t.Fatal("a sustained drop past the confirm time must alert")
	}
}

func TestWindowDetectorCandidateReset(t *testing.T) {
	w, t0 := newTestDetector()

	w.observe(21.0, t0)
	w.observe(20.95, t0.Add(30*time.Second)) // -6/h, candidate
	// flat afterwards: slope recovers, total drop never reached
	w.observe(20.94, t0.Add(3*time.Minute))
	w.observe(20.94, t0.Add(6*time.Minute))
	if w.alert(t0.Add(6 * time.Minute)) {
		t.Fatal("a drop that flattens out must not alert")
	}
	if w.state != windowIdle {
		t.Fatalf("candidate must reset, state %v", w.state)
	}
}

func TestWindowDetectorRecoveryHold(t *testing.T) {
	w, t0 := newTestDetector()

	w.observe(21.0, t0)
	w.observe(20.9, t0.Add(1*time.Minute))
	w.observe(20.7, t0.Add(2*time.Minute)) // confirmed

	// window closed, temperature levels off
	tClear := t0.Add(3 * time.Minute)
	w.observe(20.7, tClear)
	if w.alert(tClear) {
		t.Fatal("a recovered slope must clear the alert")
	}
	if !w.blockHeating(tClear.Add(9 * time.Minute)) {
		t.Fatal("heating must stay blocked through the recovery hold")
	}
	if w.blockHeating(tClear.Add(11 * time.Minute)) {
		t.Fatal("the recovery hold must expire")
	}
}

func TestWindowDetectorFalsePositiveSkipsHold(t *testing.T) {
	w, t0 := newTestDetector()

	// sharp dip and immediate full recovery: draft, not a window
	w.observe(21.0, t0)
	w.observe(20.9, t0.Add(1*time.Minute))
	w.observe(20.75, t0.Add(2*time.Minute)) // confirmed by drop
	w.observe(20.95, t0.Add(3*time.Minute)) // back up

	now := t0.Add(3 * time.Minute)
	if w.alert(now) {
		t.Fatal("alert should have cleared")
	}
	if w.blockHeating(now) {
		t.Fatal("a false positive must not hold heating back")
	}
}

func TestWindowDetectorStaleAlertClears(t *testing.T) {
	w, t0 := newTestDetector()

	w.observe(21.0, t0)
	w.observe(20.9, t0.Add(1*time.Minute))
	w.observe(20.7, t0.Add(2*time.Minute))
	if !w.alert(t0.Add(2 * time.Minute)) {
		t.Fatal("alert expected")
	}

	// sensor went quiet mid-alert
	if w.alert(t0.Add(20 * time.Minute)) {
		t.Fatal("an alert with no samples must clear itself")
	}
}

func TestWindowDetectorDisabled(t *testing.T) {
	w := &windowDetector{enabled: false, threshold: 3.0}
	t0 := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	w.observe(21.0, t0)
	w.observe(19.0, t0.Add(1*time.Minute))
	if w.blockHeating(t0.Add(1 * time.Minute)) {
		t.Fatal("disabled detector must never block")
	}
}
