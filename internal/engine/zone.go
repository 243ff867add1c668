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
	"sync"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

type sensorRole int

const (
	roleTemp sensorRole = iota
	roleOutdoor
	roleOutdoorBackup
	roleHumidity
	roleDoor
	roleMotion
)

// ZoneController runs the control loop of a single zone: hysteresis around
// the target, sensor staleness fail-safe, door/window blocking, motion
// setback and the outdoor auto on/off guard. It owns the zone's heater
// switch; the shared central source is delegated to the Coordinator.
type ZoneController struct {
	mu    sync.Mutex
	conf  *config.ZoneConfig
	log   *logger.Logger
	clock Clock

	heater Switch
	coord  *Coordinator

	powerOn  bool
	heating  bool
	degraded bool
	targetC  float64
	preset   string
	override overrideTracker

	temp     sample
	humidity sample
	door     sample
	motion   sample
	outdoor  outdoorSource

	presets presetTable
	guard   autoGuard
	window  windowDetector

	lastOn  time.Time
	lastOff time.Time

	// The valve stays open through the central off-delay so the source
	// keeps flow; this timer closes it afterwards.
	valveTimer Timer
	valveGen   uint64
}

func NewZoneController(conf *config.ZoneConfig, heater Switch, coord *Coordinator, clock Clock) *ZoneController {
	timeout := time.Duration(conf.SensorTimeoutSeconds) * time.Second
	z := &ZoneController{
		conf:    conf,
		log:     logger.New("Zone:" + conf.ID),
		clock:   clock,
		heater:  heater,
		coord:   coord,
		preset:  PresetHome,
		presets: newPresetTable(conf.Presets),
		guard: autoGuard{
			enabled: conf.AutoOnOffEnabled,
			autoOn:  conf.AutoOnTemp,
			autoOff: conf.AutoOffTemp,
		},
		window: windowDetector{
			enabled:   conf.WindowDetectionEnabled,
			threshold: conf.WindowSlopeThreshold,
		},
		outdoor: outdoorSource{
			hasBackup:  conf.BackupOutdoorSensor != "",
			useWeather: conf.WeatherFallback,
			timeout:    timeout,
		},
	}
	z.targetC = z.presets.home
	return z
}

// restore applies persisted runtime state loaded at startup.
func (z *ZoneController) restore(p *PersistedZone) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.powerOn = p.PowerOn
	if p.TargetC >= config.MinTargetTemp && p.TargetC <= config.MaxTargetTemp {
		z.targetC = p.TargetC
	}
	// empty preset means a manual target was active
	if _, ok := z.presets.lookup(p.Preset); ok || p.Preset == "" {
		z.preset = p.Preset
	}
	if p.Override {
		z.override.active = true
		z.override.since = p.OverrideSince
	}
}

func (z *ZoneController) persisted() PersistedZone {
	z.mu.Lock()
	defer z.mu.Unlock()
	return PersistedZone{
		PowerOn:       z.powerOn,
		TargetC:       z.targetC,
		Preset:        z.preset,
		Override:      z.override.active,
		OverrideSince: z.override.since,
	}
}

// applySensor routes a sample to its slot. The window detector sees every
// accepted indoor temperature, not just control ticks.
func (z *ZoneController) applySensor(role sensorRole, ev events.SensorUpdate) {
	z.mu.Lock()
	defer z.mu.Unlock()
	s := sample{value: ev.Value, at: ev.Time, valid: ev.Valid}
	switch role {
	case roleTemp:
		z.temp = s
		if ev.Valid {
			z.window.observe(ev.Value, ev.Time)
		}
	case roleOutdoor:
		z.outdoor.primary = s
	case roleOutdoorBackup:
		z.outdoor.backup = s
	case roleHumidity:
		z.humidity = s
	case roleDoor:
		z.door = s
	case roleMotion:
		z.motion = s
	}
}

func (z *ZoneController) applyWeather(ev events.WeatherUpdate) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.outdoor.weather = sample{value: ev.TemperatureC, at: ev.Time, valid: true}
}

// Evaluate runs one control cycle. Decision order: auto on/off guard,
// power, door/window blocking, temperature fail-safe, motion setback,
// hysteresis.
func (z *ZoneController) Evaluate(now time.Time) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.degraded = false
	timeout := time.Duration(z.conf.SensorTimeoutSeconds) * time.Second

	// The guard keeps tracking outdoor conditions even under override so
	// a reset applies the correct state on the next cycle.
	outdoorC, outdoorOK := z.outdoor.effective(now)
	if outdoorOK {
		decision := z.guard.observe(outdoorC)
		if !z.override.active {
			switch decision {
			case guardForceOn:
				if !z.powerOn {
					z.log.Info("outdoor %.1fC below %.1fC, auto on", outdoorC, z.conf.AutoOnTemp)
					z.powerOn = true
				}
			case guardForceOff:
				if z.powerOn {
					z.log.Info("outdoor %.1fC above %.1fC, auto off", outdoorC, z.conf.AutoOffTemp)
					z.powerOn = false
				}
			}
		}
	} else if z.guard.enabled {
		// No outdoor source at all: hold current power state.
		z.degraded = true
	}

	if !z.powerOn {
		z.stopHeatingLocked(now, true)
		return
	}

	if z.doorOpenLocked(now) || z.window.blockHeating(now) {
		z.stopHeatingLocked(now, true)
		return
	}

	if !z.temp.fresh(now, timeout) {
		// Fail safe: no trustworthy indoor reading. Stops immediately,
		// bypassing the minimum on-time.
		if z.heating {
			z.log.Error("temperature stale, stopping heat")
		}
		z.degraded = true
		z.stopHeatingLocked(now, true)
		return
	}

	target := z.targetC
	if z.motionAbsentLocked(now) {
		if away := z.presets.away; away < target {
			target = away
		}
	}

	switch {
	case z.heating && z.temp.value >= target+z.conf.HysteresisHigh:
		z.stopHeatingLocked(now, false)
	case !z.heating && z.temp.value <= target-z.conf.HysteresisLow:
		z.startHeatingLocked(now)
	}
}

func (z *ZoneController) doorOpenLocked(now time.Time) bool {
	timeout := time.Duration(z.conf.SensorTimeoutSeconds) * time.Second
	return z.conf.DoorWindowSensor != "" &&
		z.door.fresh(now, timeout) && z.door.value > 0
}

func (z *ZoneController) motionAbsentLocked(now time.Time) bool {
	if z.conf.MotionTimeoutSeconds <= 0 || z.conf.MotionSensor == "" {
		return false
	}
	if z.motion.valid && z.motion.value > 0 {
		return false
	}
	// The sensor reports edges only, so the clear edge is the last
	// activity and the timeout counts from it.
	window := time.Duration(z.conf.MotionTimeoutSeconds) * time.Second
	return !(z.motion.valid && now.Sub(z.motion.at) <= window)
}

func (z *ZoneController) startHeatingLocked(now time.Time) {
	if z.heating {
		return
	}
	minOff := time.Duration(z.conf.MinOffSeconds) * time.Second
	if minOff > 0 && !z.lastOff.IsZero() && now.Sub(z.lastOff) < minOff {
		return
	}
	z.cancelValveTimerLocked()
	z.heating = true
	z.lastOn = now
	if err := z.heater(true); err != nil {
		z.log.Error("heater on: %v", err)
	}
	if z.coord != nil {
		z.coord.Register(z.conf.ID,
			time.Duration(z.conf.CentralOnDelaySeconds)*time.Second,
			time.Duration(z.conf.CentralOffDelaySeconds)*time.Second)
	}
}

// stopHeatingLocked ends a heating run. A normal stop respects the minimum
// on-time and may leave the valve open through the central off-delay; an
// immediate stop (power off, open door, shutdown) closes everything now.
func (z *ZoneController) stopHeatingLocked(now time.Time, immediate bool) {
	if !z.heating {
		if immediate && z.valveTimer != nil {
			z.cancelValveTimerLocked()
			if err := z.heater(false); err != nil {
				z.log.Error("heater off: %v", err)
			}
		}
		return
	}
	minOn := time.Duration(z.conf.MinOnSeconds) * time.Second
	if !immediate && minOn > 0 && now.Sub(z.lastOn) < minOn {
		return
	}
	z.heating = false
	z.lastOff = now
	if z.coord != nil {
		z.coord.Deregister(z.conf.ID)
	}

	offDelay := time.Duration(z.conf.CentralOffDelaySeconds) * time.Second
	if z.coord == nil || immediate || z.coord.HasDemand() || offDelay <= 0 {
		if err := z.heater(false); err != nil {
			z.log.Error("heater off: %v", err)
		}
		return
	}
	// Last zone on the source: hold the valve open while the source
	// spins down, then close.
	z.valveGen++
	gen := z.valveGen
	z.valveTimer = z.clock.AfterFunc(offDelay, func() { z.closeValve(gen) })
}

func (z *ZoneController) closeValve(gen uint64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if gen != z.valveGen || z.valveTimer == nil {
		return
	}
	z.valveTimer = nil
	if z.heating {
		return
	}
	if err := z.heater(false); err != nil {
		z.log.Error("heater off: %v", err)
	}
}

func (z *ZoneController) cancelValveTimerLocked() {
	if z.valveTimer != nil {
		z.valveTimer.Stop()
		z.valveTimer = nil
		z.valveGen++
	}
}

func (z *ZoneController) shutdown(now time.Time) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.stopHeatingLocked(now, true)
}

// Command surface. Any user-initiated change marks the manual override.

func (z *ZoneController) setTarget(temp float64, now time.Time) error {
	if temp < config.MinTargetTemp || temp > config.MaxTargetTemp {
		return ErrInvalidTemperature
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.targetC = temp
	z.preset = ""
	z.override.mark(now)
	return nil
}

func (z *ZoneController) setPreset(name string, now time.Time) error {
	temp, ok := z.presets.lookup(name)
	if !ok {
		return ErrInvalidPreset
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	z.preset = name
	z.targetC = temp
	z.override.mark(now)
	return nil
}

func (z *ZoneController) setPower(on bool, now time.Time) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.powerOn = on
	z.override.mark(now)
}

func (z *ZoneController) resetOverride() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.override.clear()
}

func (z *ZoneController) snapshot(now time.Time) events.ZoneState {
	z.mu.Lock()
	defer z.mu.Unlock()
	timeout := time.Duration(z.conf.SensorTimeoutSeconds) * time.Second
	outdoorC, outdoorOK := z.outdoor.effective(now)
	st := events.ZoneState{
		ZoneID:        z.conf.ID,
		Name:          z.conf.Name,
		PowerOn:       z.powerOn,
		Heating:       z.heating,
		Degraded:      z.degraded,
		Override:      z.override.active,
		TargetC:       z.targetC,
		Preset:        z.preset,
		OverrideSince: z.override.since,
		Time:          now,
	}
	if z.temp.fresh(now, timeout) {
		st.CurrentC = z.temp.value
		st.HasTemp = true
	}
	if outdoorOK {
		st.OutdoorC = outdoorC
		st.HasOutdoor = true
	}
	if z.humidity.fresh(now, timeout) {
		st.Humidity = z.humidity.value
		st.HasHumidity = true
	}
	st.DoorOpen = z.doorOpenLocked(now)
	st.Motion = z.motion.fresh(now, timeout) && z.motion.value > 0
	if z.window.alert(now) {
		st.WindowAlert = "open"
	} else if z.window.blockHeating(now) {
		st.WindowAlert = "recovery"
	}
	return st
}
