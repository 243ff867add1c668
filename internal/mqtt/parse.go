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

package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/events"
)

// jsonSample is the structured payload some bridges publish instead of a
// bare number.
type jsonSample struct {
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// ParseSensorPayload turns an MQTT payload into a SensorUpdate. Accepted
// forms: a bare number, common binary keywords, or a JSON object with a
// "value" field and optional RFC3339 "timestamp". Anything else, and the
// explicit unavailable markers, produce an invalid sample that marks the
// entity unavailable.
func ParseSensorPayload(entity string, payload []byte, now time.Time) events.SensorUpdate {
	ev := events.SensorUpdate{Entity: entity, Time: now}

	text := strings.TrimSpace(string(payload))
	switch strings.ToLower(text) {
	case "", "unavailable", "unknown", "none", "null", "nan":
		return ev
	case "on", "true", "open", "detected", "motion", "heat":
		ev.Value, ev.Valid = 1, true
		return ev
	case "off", "false", "closed", "clear", "no_motion":
		ev.Value, ev.Valid = 0, true
		return ev
	}

	if strings.HasPrefix(text, "{") {
		var js jsonSample
		if err := json.Unmarshal(payload, &js); err != nil || js.Value == nil {
			return ev
		}
		ev.Value, ev.Valid = *js.Value, true
		if ts, err := time.Parse(time.RFC3339, js.Timestamp); err == nil {
			ev.Time = ts
		}
		return ev
	}

	if v, err := strconv.ParseFloat(text, 64); err == nil {
		ev.Value, ev.Valid = v, true
	}
	return ev
}
