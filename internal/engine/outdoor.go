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

// sample is the last value seen from one sensor entity.
type sample struct {
	value float64
	at    time.Time
	valid bool
}

func (s sample) fresh(now time.Time, timeout time.Duration) bool {
	return s.valid && now.Sub(s.at) <= timeout
}

// outdoorSource fuses the outdoor readings of a zone: the primary sensor,
// then the backup sensor, then the weather service when enabled. Each link
// in the chain must be valid and fresh to be used.
type outdoorSource struct {
	primary sample
	backup  sample
	weather sample

	hasBackup  bool
	useWeather bool
	timeout    time.Duration
}

// effective returns the fused outdoor temperature, or false when every
// configured source is stale or unavailable.
func (o *outdoorSource) effective(now time.Time) (float64, bool) {
	if o.primary.fresh(now, o.timeout) {
		return o.primary.value, true
	}
	if o.hasBackup && o.backup.fresh(now, o.timeout) {
		return o.backup.value, true
	}
	if o.useWeather && o.weather.fresh(now, o.timeout) {
		return o.weather.value, true
	}
	return 0, false
}
