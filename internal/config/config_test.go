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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validZone() ZoneConfig {
	return ZoneConfig{
		ID:            "living",
		Heater:        "mqtt:living/heater",
		TempSensor:    "living/temp",
		OutdoorSensor: "outdoor/temp",
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no zones",
			mutate:  func(c *Config) { c.Zones = nil },
			wantErr: "no zones",
		},
		{
			name: "missing zone id",
			mutate: func(c *Config) {
				c.Zones[0].ID = ""
			},
			wantErr: "missing id",
		},
		{
			name: "duplicate zone id",
			mutate: func(c *Config) {
				c.Zones = append(c.Zones, c.Zones[0])
			},
			wantErr: "duplicate zone id",
		},
		{
			name: "missing heater",
			mutate: func(c *Config) {
				c.Zones[0].Heater = ""
			},
			wantErr: "missing heater",
		},
		{
			name: "missing temp sensor",
			mutate: func(c *Config) {
				c.Zones[0].TempSensor = ""
			},
			wantErr: "missing temp_sensor",
		},
		{
			name: "missing outdoor sensor",
			mutate: func(c *Config) {
				c.Zones[0].OutdoorSensor = ""
			},
			wantErr: "missing outdoor_sensor",
		},
		{
			name: "negative central delay",
			mutate: func(c *Config) {
				c.Zones[0].CentralOffDelaySeconds = -1
			},
			wantErr: "delays must be >= 0",
		},
		{
			name: "negative min on time",
			mutate: func(c *Config) {
				c.Zones[0].MinOnSeconds = -10
			},
			wantErr: "min on/off times must be >= 0",
		},
		{
			name: "auto thresholds inverted",
			mutate: func(c *Config) {
				c.Zones[0].AutoOnOffEnabled = true
				c.Zones[0].AutoOnTemp = 19.0
				c.Zones[0].AutoOffTemp = 18.0
			},
			wantErr: "must be below auto_off_temp",
		},
		{
			name: "preset out of bounds",
			mutate: func(c *Config) {
				c.Zones[0].Presets.Home = 35.0
			},
			wantErr: "outside",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Zones: []ZoneConfig{validZone()}}
			c.applyDefaults()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{Zones: []ZoneConfig{validZone()}}
	c.Zones[0].CentralHeater = "mqtt:central"
	c.Zones[0].AutoOnOffEnabled = true
	c.applyDefaults()

	z := &c.Zones[0]
	if z.Name != "living" {
		t.Fatalf("zone name should default to the id, got %q", z.Name)
	}
	if z.Presets.Home != 23.0 || z.Presets.Sleep != 21.0 || z.Presets.Away != 18.0 {
		t.Fatalf("preset defaults wrong: %+v", z.Presets)
	}
	if z.HysteresisLow != 0.3 || z.HysteresisHigh != 0.3 {
		t.Fatalf("hysteresis defaults wrong: %v %v", z.HysteresisLow, z.HysteresisHigh)
	}
	if z.SensorTimeoutSeconds != 1800 {
		t.Fatalf("sensor timeout default wrong: %d", z.SensorTimeoutSeconds)
	}
	if z.AutoOnTemp != 10.0 || z.AutoOffTemp != 18.0 {
		t.Fatalf("auto thresholds defaults wrong: %v %v", z.AutoOnTemp, z.AutoOffTemp)
	}
	if z.CentralOnDelaySeconds != 10 || z.CentralOffDelaySeconds != 120 {
		t.Fatalf("central delays defaults wrong: %d %d",
			z.CentralOnDelaySeconds, z.CentralOffDelaySeconds)
	}
	if c.Engine.TickSeconds != 30 {
		t.Fatalf("tick default wrong: %d", c.Engine.TickSeconds)
	}
	if c.MQTT.StatePrefix != "thermostat/state" {
		t.Fatalf("state prefix default wrong: %q", c.MQTT.StatePrefix)
	}
}

func TestWindowThresholdFloor(t *testing.T) {
	c := &Config{Zones: []ZoneConfig{validZone()}}
	c.Zones[0].WindowDetectionEnabled = true
	c.Zones[0].WindowSlopeThreshold = 0.1
	c.applyDefaults()
	if c.Zones[0].WindowSlopeThreshold != 3.0 {
		t.Fatalf("thresholds below the floor must fall back to the default, got %v",
			c.Zones[0].WindowSlopeThreshold)
	}
}

func TestLoadFromFile(t *testing.T) {
	raw := `
server:
  http_addr: ":9090"
mqtt:
  broker: "tcp://localhost:1883"
zones:
  - id: living
    name: "Living Room"
    heater: "mqtt:living/heater"
    central_heater: "mqtt:boiler"
    temp_sensor: "living/temp"
    outdoor_sensor: "outdoor/temp"
    presets:
      home: 22.5
    auto_on_off_enabled: true
`
	path := filepath.Join(t.TempDir(), "thermostat.yml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.HTTPAddr != ":9090" {
		t.Fatalf("http addr: %q", c.Server.HTTPAddr)
	}
	z := c.Zone("living")
	if z == nil {
		t.Fatal("zone lookup failed")
	}
	if z.Presets.Home != 22.5 || z.Presets.Sleep != 21.0 {
		t.Fatalf("presets: %+v", z.Presets)
	}
	if z.CentralOnDelaySeconds != 10 {
		t.Fatalf("central on delay: %d", z.CentralOnDelaySeconds)
	}
	if c.Zone("bedroom") != nil {
		t.Fatal("unknown zone lookup must return nil")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermostat.yml")
	if err := os.WriteFile(path, []byte("zones: []"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("empty zone list must be rejected")
	}
}
