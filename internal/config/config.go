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
	"fmt"
	"os"

	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"gopkg.in/yaml.v3"
)

// Temperature limits applied to presets and manual setpoints.
const (
	MinTargetTemp = 5.0
	MaxTargetTemp = 30.0
)

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`

	// Retained per-zone state is published under <state_prefix>/<zone_id>.
	StatePrefix string `yaml:"state_prefix"`
}

type WeatherConfig struct {
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	InfluxURL    string `yaml:"influx_url"`
	InfluxToken  string `yaml:"influx_token"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`

	IntervalSeconds int `yaml:"interval_seconds"`
}

type ModbusConfig struct {
	// Path to the register map file loaded by pkg/modbus.
	// Empty disables the modbus backend.
	ConfigFile string `yaml:"config_file"`

	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PresetConfig holds the named preset temperatures of a zone.
type PresetConfig struct {
	Home  float64 `yaml:"home"`
	Sleep float64 `yaml:"sleep"`
	Away  float64 `yaml:"away"`
}

// ZoneConfig describes one heating zone. Actuator references (Heater,
// CentralHeater) are strings of the form "mqtt:<topic>" or
// "modbus:<register>". Sensor references are MQTT topics or
// "modbus:<register>" names; they become the Entity of SensorUpdate events.
type ZoneConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	Heater        string `yaml:"heater"`
	CentralHeater string `yaml:"central_heater"`

	TempSensor          string `yaml:"temp_sensor"`
	OutdoorSensor       string `yaml:"outdoor_sensor"`
	BackupOutdoorSensor string `yaml:"backup_outdoor_sensor"`
	// Use the weather service as the last outdoor fallback.
	WeatherFallback bool `yaml:"weather_fallback"`

	HumiditySensor   string `yaml:"humidity_sensor"`
	DoorWindowSensor string `yaml:"door_window_sensor"`
	MotionSensor     string `yaml:"motion_sensor"`

	Presets PresetConfig `yaml:"presets"`

	HysteresisLow  float64 `yaml:"hysteresis_low"`
	HysteresisHigh float64 `yaml:"hysteresis_high"`

	MinOnSeconds         int `yaml:"min_on_seconds"`
	MinOffSeconds        int `yaml:"min_off_seconds"`
	SensorTimeoutSeconds int `yaml:"sensor_timeout_seconds"`

	AutoOnOffEnabled bool    `yaml:"auto_on_off_enabled"`
	AutoOnTemp       float64 `yaml:"auto_on_temp"`
	AutoOffTemp      float64 `yaml:"auto_off_temp"`

	CentralOnDelaySeconds  int `yaml:"central_heater_on_delay_seconds"`
	CentralOffDelaySeconds int `yaml:"central_heater_off_delay_seconds"`

	WindowDetectionEnabled bool `yaml:"window_detection_enabled"`
	// Sustained cooling rate in degC/hour that marks an open window.
	WindowSlopeThreshold float64 `yaml:"window_slope_threshold"`

	// No motion within this window evaluates the zone against the away
	// preset. Zero disables motion gating.
	MotionTimeoutSeconds int `yaml:"motion_timeout_seconds"`
}

type EngineConfig struct {
	TickSeconds int `yaml:"tick_seconds"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Weather WeatherConfig `yaml:"weather"`
	Store   StoreConfig   `yaml:"store"`
	History HistoryConfig `yaml:"history"`
	Modbus  ModbusConfig  `yaml:"modbus"`
	Engine  EngineConfig  `yaml:"engine"`
	Zones   []ZoneConfig  `yaml:"zones"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `yaml:"-"`
	RootDir  string        `yaml:"-"`
}

// Load reads, defaults and validates a config file. A validation failure
// rejects startup before any runtime state is created.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "thermostatd"
	}
	if c.MQTT.StatePrefix == "" {
		c.MQTT.StatePrefix = "thermostat/state"
	}
	if c.Weather.PollIntervalSeconds == 0 {
		c.Weather.PollIntervalSeconds = 300
	}
	if c.History.IntervalSeconds == 0 {
		c.History.IntervalSeconds = 60
	}
	if c.Modbus.PollIntervalSeconds == 0 {
		c.Modbus.PollIntervalSeconds = 15
	}
	if c.Engine.TickSeconds == 0 {
		c.Engine.TickSeconds = 30
	}
	for i := range c.Zones {
		z := &c.Zones[i]
		if z.Name == "" {
			z.Name = z.ID
		}
		if z.Presets.Home == 0 {
			z.Presets.Home = 23.0
		}
		if z.Presets.Sleep == 0 {
			z.Presets.Sleep = 21.0
		}
		if z.Presets.Away == 0 {
			z.Presets.Away = 18.0
		}
		if z.HysteresisLow == 0 {
			z.HysteresisLow = 0.3
		}
		if z.HysteresisHigh == 0 {
			z.HysteresisHigh = 0.3
		}
		if z.SensorTimeoutSeconds == 0 {
			z.SensorTimeoutSeconds = 1800
		}
		if z.AutoOnOffEnabled {
			if z.AutoOnTemp == 0 {
				z.AutoOnTemp = 10.0
			}
			if z.AutoOffTemp == 0 {
				z.AutoOffTemp = 18.0
			}
		}
		if z.CentralHeater != "" {
			if z.CentralOnDelaySeconds == 0 {
				z.CentralOnDelaySeconds = 10
			}
			if z.CentralOffDelaySeconds == 0 {
				z.CentralOffDelaySeconds = 120
			}
		}
		if z.WindowDetectionEnabled && z.WindowSlopeThreshold < 0.5 {
			z.WindowSlopeThreshold = 3.0
		}
	}
}

// Validate rejects configurations the engine must never run with.
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return fmt.Errorf("config: no zones configured")
	}
	seen := make(map[string]bool, len(c.Zones))
	for i := range c.Zones {
		z := &c.Zones[i]
		if z.ID == "" {
			return fmt.Errorf("config: zone %d: missing id", i)
		}
		if seen[z.ID] {
			return fmt.Errorf("config: duplicate zone id %q", z.ID)
		}
		seen[z.ID] = true
		if z.Heater == "" {
			return fmt.Errorf("config: zone %q: missing heater", z.ID)
		}
		if z.TempSensor == "" {
			return fmt.Errorf("config: zone %q: missing temp_sensor", z.ID)
		}
		if z.OutdoorSensor == "" {
			return fmt.Errorf("config: zone %q: missing outdoor_sensor", z.ID)
		}
		if z.CentralOnDelaySeconds < 0 || z.CentralOffDelaySeconds < 0 {
			return fmt.Errorf("config: zone %q: central heater delays must be >= 0", z.ID)
		}
		if z.MinOnSeconds < 0 || z.MinOffSeconds < 0 {
			return fmt.Errorf("config: zone %q: min on/off times must be >= 0", z.ID)
		}
		if z.AutoOnOffEnabled && z.AutoOnTemp >= z.AutoOffTemp {
			return fmt.Errorf("config: zone %q: auto_on_temp (%.1f) must be below auto_off_temp (%.1f)",
				z.ID, z.AutoOnTemp, z.AutoOffTemp)
		}
		for name, temp := range map[string]float64{
			"home":  z.Presets.Home,
			"sleep": z.Presets.Sleep,
			"away":  z.Presets.Away,
		} {
			if temp < MinTargetTemp || temp > MaxTargetTemp {
				return fmt.Errorf("config: zone %q: %s preset %.1f outside [%.1f, %.1f]",
					z.ID, name, temp, MinTargetTemp, MaxTargetTemp)
			}
		}
	}
	return nil
}

// Zone returns the configuration of a zone by id, or nil.
func (c *Config) Zone(id string) *ZoneConfig {
	for i := range c.Zones {
		if c.Zones[i].ID == id {
			return &c.Zones[i]
		}
	}
	return nil
}
