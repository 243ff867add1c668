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

// overrideTracker records user-initiated changes that suspend automatic
// on/off forcing. Any power, preset or target change not originated by the
// auto on/off guard marks the override; only an explicit reset clears it.
type overrideTracker struct {
	active bool
	since  time.Time
}

func (t *overrideTracker) mark(now time.Time) {
	t.active = true
	t.since = now
}

func (t *overrideTracker) clear() {
	t.active = false
	t.since = time.Time{}
}
