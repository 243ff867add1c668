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

package events

import (
	"time"

	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
)

var (
	TopicSensors   eventbus.Topic = "sensors"
	TopicWeather   eventbus.Topic = "weather"
	TopicZoneState eventbus.Topic = "zonestate"
)

// SensorUpdate is one point sample from an external entity (MQTT topic or
// modbus register). Binary sensors are mapped to 0/1. Valid is false when the
// source reported the entity as unavailable/unknown or the payload did not
// parse; such samples mark the entity unavailable without carrying a value.
type SensorUpdate struct {
	Entity string
	Value  float64
	Valid  bool
	Time   time.Time
}

// WeatherUpdate carries the outdoor temperature from the weather service.
// It is the last fallback of the outdoor temperature resolution chain.
type WeatherUpdate struct {
	TemperatureC float64
	Time         time.Time
}

// ZoneState is the published per-zone snapshot. It feeds the web dashboard,
// the prometheus collector, the influx history writer and the retained MQTT
// state topics.
type ZoneState struct {
	ZoneID   string `json:"zone_id"`
	Name     string `json:"name"`
	PowerOn  bool   `json:"power_on"`
	Heating  bool   `json:"heating"`
	Degraded bool   `json:"degraded"`
	Override bool   `json:"manual_override"`

	CurrentC float64 `json:"current_temperature"`
	TargetC  float64 `json:"target_temperature"`
	HasTemp  bool    `json:"has_temperature"`
	Preset   string  `json:"preset,omitempty"`

	OutdoorC   float64 `json:"outdoor_temperature"`
	HasOutdoor bool    `json:"has_outdoor"`

	Humidity    float64 `json:"humidity,omitempty"`
	HasHumidity bool    `json:"has_humidity,omitempty"`
	DoorOpen    bool    `json:"door_window_open,omitempty"`
	Motion      bool    `json:"motion_active,omitempty"`

	WindowAlert   string    `json:"window_alert,omitempty"`
	OverrideSince time.Time `json:"manual_override_since,omitzero"`
	Time          time.Time `json:"time"`
}
