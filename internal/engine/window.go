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

import "time"

// Slope-detection tuning. A candidate drop must either lose confirmDrop
// degrees or keep a steep slope for confirmAfter before it is treated as an
// open window. An alert that recovers having lost less than falsePosDrop
// was a draft or a noisy sensor and does not trigger the recovery hold.
const (
	slopeEpsilon = 0.001

	confirmDrop    = 0.15
	confirmAfter   = 120 * time.Second
	candidateReset = 240 * time.Second
	falsePosDrop   = 0.1

	alertStale   = 900 * time.Second
	recoveryHold = 600 * time.Second
)

type windowState int

const (
	windowIdle windowState = iota
	windowCandidate
	windowOpen
)

// windowDetector infers an open window from a sustained drop in the zone
// temperature, measured as a slope in degC per hour. While the alert is
// active, and for a recovery hold after it clears, heating is blocked so
// the zone does not heat the street.
type windowDetector struct {
	enabled   bool
	threshold float64 // degC/hour, positive

	state    windowState
	lastTemp float64
	lastAt   time.Time
	hasLast  bool

	baseline       float64 // temp when the drop began
	candidateSince time.Time
	candidateCount int
	openSince      time.Time

	clearedAt     time.Time
	falsePositive bool
}

// observe feeds a temperature sample. Samples arriving out of order or
// with no elapsed time are ignored.
func (w *windowDetector) observe(temp float64, now time.Time) {
	if !w.enabled {
		return
	}
	if !w.hasLast {
		w.lastTemp, w.lastAt, w.hasLast = temp, now, true
		return
	}
	dt := now.Sub(w.lastAt)
	if dt <= 0 {
		return
	}
	slope := (temp - w.lastTemp) / dt.Hours()
	prev := w.lastTemp
	w.lastTemp, w.lastAt = temp, now

	switch w.state {
	case windowIdle:
		if slope <= -w.threshold {
			w.state = windowCandidate
			w.baseline = prev
			w.candidateSince = now
			w.candidateCount = 1
		}

	case windowCandidate:
		w.candidateCount++
		drop := w.baseline - temp
		switch {
		case drop >= confirmDrop:
			w.open(now)
		case w.candidateCount >= 2 &&
			now.Sub(w.candidateSince) >= confirmAfter &&
			slope <= -w.threshold*0.5:
			w.open(now)
		case now.Sub(w.candidateSince) > candidateReset:
			w.state = windowIdle
		}

	case windowOpen:
		if slope >= -w.threshold*0.4+slopeEpsilon {
			w.clear(now, temp)
		}
	}
}

func (w *windowDetector) open(now time.Time) {
	w.state = windowOpen
	w.openSince = now
}

func (w *windowDetector) clear(now time.Time, temp float64) {
	w.state = windowIdle
	w.clearedAt = now
	// An alert that never cost us real heat was a false positive and
	// skips the recovery hold.
	w.falsePositive = w.baseline-temp < falsePosDrop
}

// alert reports whether an open window is currently detected. An alert
// with no sample for alertStale clears itself, covering a sensor that
// stopped reporting mid-alert.
func (w *windowDetector) alert(now time.Time) bool {
	if w.state != windowOpen {
		return false
	}
	if now.Sub(w.lastAt) > alertStale || now.Sub(w.openSince) > alertStale {
		w.state = windowIdle
		w.clearedAt = now
		w.falsePositive = true
		return false
	}
	return true
}

// blockHeating reports whether heating must stay off: either the alert is
// active or the zone is inside the post-alert recovery hold.
func (w *windowDetector) blockHeating(now time.Time) bool {
	if !w.enabled {
		return false
	}
	if w.alert(now) {
		return true
	}
	if !w.clearedAt.IsZero() && !w.falsePositive &&
		now.Sub(w.clearedAt) < recoveryHold {
		return true
	}
	return false
}
