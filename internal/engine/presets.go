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

import "github.com/Horia73/adaptive-thermostat/internal/config"

// Preset names accepted by SetPreset.
const (
	PresetHome  = "home"
	PresetSleep = "sleep"
	PresetAway  = "away"
)

// presetTable maps a zone's named presets to target temperatures.
type presetTable struct {
	home  float64
	sleep float64
	away  float64
}

func newPresetTable(conf config.PresetConfig) presetTable {
	return presetTable{home: conf.Home, sleep: conf.Sleep, away: conf.Away}
}

func (p presetTable) lookup(name string) (float64, bool) {
	switch name {
	case PresetHome:
		return p.home, true
	case PresetSleep:
		return p.sleep, true
	case PresetAway:
		return p.away, true
	}
	return 0, false
}
