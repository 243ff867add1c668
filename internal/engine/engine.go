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

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

// SwitchResolver maps an actuator reference from the config ("mqtt:<topic>"
// or "modbus:<register>") to a Switch.
type SwitchResolver func(ref string) (Switch, error)

// PersistedZone is the user-settable state that survives a restart.
type PersistedZone struct {
	PowerOn       bool
	TargetC       float64
	Preset        string
	Override      bool
	OverrideSince time.Time
}

// StateStore persists per-zone state across restarts.
type StateStore interface {
	Load(zoneID string) (*PersistedZone, error)
	Save(zoneID string, p PersistedZone) error
}

type binding struct {
	zone *ZoneController
	role sensorRole
}

// Service drives all zone controllers: it consumes sensor and weather
// events, runs the periodic control cycle, exposes the command surface
// and publishes per-zone state snapshots.
type Service struct {
	mu    sync.Mutex
	conf  *config.Config
	log   *logger.Logger
	bus   *eventbus.Bus
	clock Clock

	zones    map[string]*ZoneController
	order    []string
	byEntity map[string][]binding
	registry *CoordinatorRegistry
	store    StateStore

	// last accepted sample time per entity, to drop reordered samples
	lastAccepted map[string]time.Time

	hub *wsHub
}

func New(conf *config.Config, resolve SwitchResolver, store StateStore, clock Clock) (*Service, error) {
	s := &Service{
		conf:         conf,
		log:          logger.New("Engine"),
		bus:          conf.EventBus,
		clock:        clock,
		zones:        make(map[string]*ZoneController),
		byEntity:     make(map[string][]binding),
		registry:     NewCoordinatorRegistry(clock),
		store:        store,
		lastAccepted: make(map[string]time.Time),
		hub:          newWSHub(),
	}

	for i := range conf.Zones {
		zc := &conf.Zones[i]
		heater, err := resolve(zc.Heater)
		if err != nil {
			return nil, fmt.Errorf("zone %q: heater: %w", zc.ID, err)
		}
		var coord *Coordinator
		if zc.CentralHeater != "" {
			central, err := resolve(zc.CentralHeater)
			if err != nil {
				return nil, fmt.Errorf("zone %q: central heater: %w", zc.ID, err)
			}
			coord = s.registry.Acquire(zc.CentralHeater, central)
		}
		zone := NewZoneController(zc, heater, coord, clock)
		if store != nil {
			if p, err := store.Load(zc.ID); err != nil {
				s.log.Error("zone %q: load state: %v", zc.ID, err)
			} else if p != nil {
				zone.restore(p)
			}
		}
		s.zones[zc.ID] = zone
		s.order = append(s.order, zc.ID)

		s.bind(zc.TempSensor, zone, roleTemp)
		s.bind(zc.OutdoorSensor, zone, roleOutdoor)
		s.bind(zc.BackupOutdoorSensor, zone, roleOutdoorBackup)
		s.bind(zc.HumiditySensor, zone, roleHumidity)
		s.bind(zc.DoorWindowSensor, zone, roleDoor)
		s.bind(zc.MotionSensor, zone, roleMotion)
	}
	return s, nil
}

func (s *Service) bind(entity string, zone *ZoneController, role sensorRole) {
	if entity == "" {
		return
	}
	s.byEntity[entity] = append(s.byEntity[entity], binding{zone, role})
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")

	sensorCh, unsubSensors := s.bus.Subscribe(ctx, events.TopicSensors, true)
	defer unsubSensors()
	weatherCh, unsubWeather := s.bus.Subscribe(ctx, events.TopicWeather, true)
	defer unsubWeather()

	tick := time.Duration(s.conf.Engine.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.evaluateAll()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev, ok := <-sensorCh:
			if !ok {
				return
			}
			if su, ok := ev.(events.SensorUpdate); ok {
				s.handleSensor(su)
			}
		case ev, ok := <-weatherCh:
			if !ok {
				return
			}
			if wu, ok := ev.(events.WeatherUpdate); ok {
				s.handleWeather(wu)
			}
		case <-ticker.C:
			s.evaluateAll()
		}
	}
}

// handleSensor routes one sample to every zone binding of the entity and
// re-evaluates the affected zones right away, so blocking sensors act
// without waiting for the periodic tick. Samples older than the last
// accepted one for the entity are dropped.
func (s *Service) handleSensor(ev events.SensorUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastAccepted[ev.Entity]; ok && ev.Time.Before(last) {
		s.log.Debug("dropping reordered sample for %s", ev.Entity)
		return
	}
	s.lastAccepted[ev.Entity] = ev.Time

	for _, b := range s.byEntity[ev.Entity] {
		b.zone.applySensor(b.role, ev)
	}

	now := s.clock.Now()
	seen := make(map[*ZoneController]bool)
	for _, b := range s.byEntity[ev.Entity] {
		if seen[b.zone] {
			continue
		}
		seen[b.zone] = true
		b.zone.Evaluate(now)
		s.publishLocked(b.zone, now)
	}
}

func (s *Service) handleWeather(ev events.WeatherUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, id := range s.order {
		z := s.zones[id]
		z.applyWeather(ev)
		// only zones using the weather fallback can change state here
		if z.conf.WeatherFallback {
			z.Evaluate(now)
			s.publishLocked(z, now)
		}
	}
}

func (s *Service) evaluateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, id := range s.order {
		z := s.zones[id]
		z.Evaluate(now)
		s.publishLocked(z, now)
	}
}

func (s *Service) publishLocked(z *ZoneController, now time.Time) {
	st := z.snapshot(now)
	s.bus.Publish(events.TopicZoneState, st)
	s.hub.broadcast(st)
}

func (s *Service) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, id := range s.order {
		s.zones[id].shutdown(now)
	}
	s.registry.ShutdownAll()
	s.log.Info("Stopped")
}

// zone returns the controller or ErrUnknownZone.
func (s *Service) zone(id string) (*ZoneController, error) {
	z, ok := s.zones[id]
	if !ok {
		return nil, ErrUnknownZone
	}
	return z, nil
}

// applyAndPublish re-evaluates one zone after a command, publishes the
// new snapshot and persists the user-settable state.
func (s *Service) applyAndPublish(z *ZoneController) {
	now := s.clock.Now()
	z.Evaluate(now)
	s.publishLocked(z, now)
	if s.store != nil {
		if err := s.store.Save(z.conf.ID, z.persisted()); err != nil {
			s.log.Error("zone %q: save state: %v", z.conf.ID, err)
		}
	}
}

// SetTarget sets a manual target temperature, clearing the named preset
// and marking the manual override.
func (s *Service) SetTarget(zoneID string, temp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zone(zoneID)
	if err != nil {
		return err
	}
	if err := z.setTarget(temp, s.clock.Now()); err != nil {
		return err
	}
	s.applyAndPublish(z)
	return nil
}

// SetPreset activates a named preset for the zone.
func (s *Service) SetPreset(zoneID, preset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zone(zoneID)
	if err != nil {
		return err
	}
	if err := z.setPreset(preset, s.clock.Now()); err != nil {
		return err
	}
	s.applyAndPublish(z)
	return nil
}

// SetPower turns the zone on or off and marks the manual override.
func (s *Service) SetPower(zoneID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zone(zoneID)
	if err != nil {
		return err
	}
	z.setPower(on, s.clock.Now())
	s.applyAndPublish(z)
	return nil
}

// ResetManualOverride returns the zone to automatic on/off control. The
// guard's current decision applies on the evaluation triggered here.
func (s *Service) ResetManualOverride(zoneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.zone(zoneID)
	if err != nil {
		return err
	}
	z.resetOverride()
	s.applyAndPublish(z)
	return nil
}

// ZoneStates returns the current snapshot of every zone in config order.
func (s *Service) ZoneStates() []events.ZoneState {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	out := make([]events.ZoneState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.zones[id].snapshot(now))
	}
	return out
}
