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

package modbusio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/engine"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
	"github.com/Horia73/adaptive-thermostat/pkg/modbus"
)

// RefPrefix marks sensor and actuator references served by this backend.
const RefPrefix = "modbus:"

// Service polls readable registers of one modbus TCP device into sensor
// events, and writes bool registers for actuators referenced as
// "modbus:<register>".
type Service struct {
	log     *logger.Logger
	bus     *eventbus.Bus
	poll    time.Duration
	regConf *modbus.Config

	client atomic.Pointer[modbus.Client]

	mu   sync.RWMutex
	last map[string]lastReading
}

type lastReading struct {
	Value float64   `json:"value"`
	Valid bool      `json:"valid"`
	Time  time.Time `json:"time"`
}

func New(appConf *config.Config) *Service {
	return &Service{
		log:     logger.New("Modbus"),
		bus:     appConf.EventBus,
		poll:    time.Duration(appConf.Modbus.PollIntervalSeconds) * time.Second,
		regConf: modbus.LoadConfig(appConf.Modbus.ConfigFile),
		last:    make(map[string]lastReading),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")

	// blocks until the device accepts a connection
	client := modbus.NewClient(ctx, s.regConf)
	s.client.Store(client)
	defer client.Close()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.pollOnce()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopped")
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

// pollOnce reads every non-writable register and publishes a sensor
// sample per register. A read failure marks the entity unavailable.
func (s *Service) pollOnce() {
	client := s.client.Load()
	if client == nil {
		return
	}
	now := time.Now()
	for name, def := range s.regConf.Registers {
		if def.Writable {
			continue
		}
		ev := events.SensorUpdate{Entity: RefPrefix + name, Time: now}
		if def.DataType == "bool" {
			b, err := modbus.ReadTyped[bool](client, name)
			if err != nil {
				s.log.Error("read %s: %v", name, err)
			} else {
				ev.Valid = true
				if b {
					ev.Value = 1
				}
			}
		} else {
			v, err := modbus.ReadTyped[float64](client, name)
			if err != nil {
				s.log.Error("read %s: %v", name, err)
			} else {
				ev.Value, ev.Valid = v, true
			}
		}
		s.mu.Lock()
		s.last[name] = lastReading{Value: ev.Value, Valid: ev.Valid, Time: now}
		s.mu.Unlock()
		s.bus.Publish(events.TopicSensors, ev)
	}
}

// Switch returns an actuator switch writing a bool register.
func (s *Service) Switch(register string) engine.Switch {
	return func(on bool) error {
		client := s.client.Load()
		if client == nil {
			return fmt.Errorf("modbus %s: not connected", register)
		}
		if err := client.WriteValue(register, on); err != nil {
			return fmt.Errorf("modbus %s: %w", register, err)
		}
		return nil
	}
}

// ServeHTTP exposes the last reading per register for diagnostics.
func (s *Service) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make(map[string]lastReading, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	s.mu.RUnlock()

	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
