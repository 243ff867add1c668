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

// outdoorDeadband suppresses auto on/off re-evaluation for outdoor moves
// smaller than this, so a reading hovering around a threshold does not
// flap the zone.
const outdoorDeadband = 0.5

type guardDecision int

const (
	guardNone guardDecision = iota
	guardForceOn
	guardForceOff
)

// autoGuard turns a zone on below autoOn and off above autoOff based on the
// fused outdoor temperature. The decision is sticky: it is recomputed only
// when the outdoor reading moved by at least the deadband since the last
// evaluated sample, and it keeps being applied each cycle so that clearing
// a manual override restores the automatic state.
type autoGuard struct {
	enabled bool
	autoOn  float64
	autoOff float64

	decision   guardDecision
	lastSample float64
	hasSample  bool
}

// observe feeds a fresh outdoor temperature and returns the current
// decision. The caller applies it only when no manual override is active.
func (g *autoGuard) observe(outdoor float64) guardDecision {
	if !g.enabled {
		return guardNone
	}
	if g.hasSample && abs(outdoor-g.lastSample) < outdoorDeadband {
		return g.decision
	}
	g.lastSample = outdoor
	g.hasSample = true
	switch {
	case outdoor < g.autoOn:
		g.decision = guardForceOn
	case outdoor > g.autoOff:
		g.decision = guardForceOff
	default:
		g.decision = guardNone
	}
	return g.decision
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
