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
	"testing"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
)

func testZoneConfig() *config.ZoneConfig {
	return &config.ZoneConfig{
		ID:                   "living",
		Name:                 "Living Room",
		Heater:               "mqtt:living/heater",
		TempSensor:           "living/temp",
		OutdoorSensor:        "outdoor/temp",
		Presets:              config.PresetConfig{Home: 21.0, Sleep: 19.5, Away: 18.0},
		HysteresisLow:        0.3,
		HysteresisHigh:       0.3,
		SensorTimeoutSeconds: 1800,
	}
}

type zoneFixture struct {
	zone   *ZoneController
	heater *switchRecorder
	clock  *fakeClock
}

func newZoneFixture(t *testing.T, conf *config.ZoneConfig, coord *Coordinator) *zoneFixture {
	t.Helper()
	clock := newFakeClock()
	heater := &switchRecorder{}
	zone := NewZoneController(conf, heater.Switch, coord, clock)
	zone.restore(&PersistedZone{PowerOn: true, TargetC: conf.Presets.Home, Preset: PresetHome})
	return &zoneFixture{zone: zone, heater: heater, clock: clock}
}

func (f *zoneFixture) temp(v float64) {
	f.zone.applySensor(roleTemp, events.SensorUpdate{
		Entity: "living/temp", Value: v, Valid: true, Time: f.clock.Now(),
	})
}

func (f *zoneFixture) outdoor(v float64) {
	f.zone.applySensor(roleOutdoor, events.SensorUpdate{
		Entity: "outdoor/temp", Value: v, Valid: true, Time: f.clock.Now(),
	})
}

func (f *zoneFixture) eval() events.ZoneState {
	now := f.clock.Now()
	f.zone.Evaluate(now)
	return f.zone.snapshot(now)
}

func (f *zoneFixture) heating(t *testing.T, want bool) {
	t.Helper()
	on, ok := f.heater.last()
	got := ok && on
	if got != want {
		t.Fatalf("heater commanded %v, want %v (calls %v)", got, want, f.heater.calls)
	}
}

func TestZoneHysteresis(t *testing.T) {
	f := newZoneFixture(t, testZoneConfig(), nil)

	// inside the low band: no heating yet
	f.temp(20.8)
	f.eval()
	if f.heater.count() != 0 {
		t.Fatalf("heating started inside the band: %v", f.heater.calls)
	}

	// below target - hysteresis: start
	f.temp(20.6)
	if st := f.eval(); !st.Heating {
		t.Fatal("expected heating at 20.6 with target 21.0")
	}
	f.heating(t, true)

	// inside the band while heating: keep going
	f.temp(21.1)
	if st := f.eval(); !st.Heating {
		t.Fatal("heating must continue inside the band")
	}

	// above target + hysteresis: stop
	f.temp(21.35)
	if st := f.eval(); st.Heating {
		t.Fatal("expected idle at 21.35 with target 21.0")
	}
	f.heating(t, false)
}

func TestZoneDoorOpenStopsImmediately(t *testing.T) {
	conf := testZoneConfig()
	conf.DoorWindowSensor = "living/door"
	f := newZoneFixture(t, conf, nil)

	f.temp(19.0)
	f.eval()
	f.heating(t, true)

	f.zone.applySensor(roleDoor, events.SensorUpdate{
		Entity: "living/door", Value: 1, Valid: true, Time: f.clock.Now(),
	})
	if st := f.eval(); st.Heating || !st.DoorOpen {
		t.Fatalf("open door must stop heating: %+v", st)
	}
	f.heating(t, false)

	// closing the door resumes on the next cycle
	f.zone.applySensor(roleDoor, events.SensorUpdate{
		Entity: "living/door", Value: 0, Valid: true, Time: f.clock.Now(),
	})
	if st := f.eval(); !st.Heating {
		t.Fatal("expected heating to resume after the door closed")
	}
}

func TestZoneStaleTemperatureFailSafe(t *testing.T) {
	f := newZoneFixture(t, testZoneConfig(), nil)

	f.temp(19.0)
	f.eval()
	f.heating(t, true)

	// no samples for longer than the sensor timeout
	f.clock.Advance(31 * time.Minute)
	st := f.eval()
	if st.Heating {
		t.Fatal("stale temperature must stop heating")
	}
	if !st.Degraded {
		t.Fatal("stale temperature must flag the zone degraded")
	}
	if st.HasTemp {
		t.Fatal("stale reading must not be reported as current")
	}
}

func TestZoneStaleTemperatureOverridesMinOnTime(t *testing.T) {
	conf := testZoneConfig()
	conf.MinOnSeconds = 3600
	f := newZoneFixture(t, conf, nil)

	f.temp(19.0)
	f.eval()
	f.heating(t, true)

	// the sensor goes silent well inside the minimum on time
	f.clock.Advance(31 * time.Minute)
	st := f.eval()
	if st.Heating {
		t.Fatal("stale temperature must stop heating even inside the minimum on time")
	}
	if !st.Degraded {
		t.Fatal("stale temperature must flag the zone degraded")
	}
	f.heating(t, false)
}

func TestZonePowerOffWinsOverCold(t *testing.T) {
	f := newZoneFixture(t, testZoneConfig(), nil)

	f.temp(15.0)
	f.eval()
	f.heating(t, true)

	f.zone.setPower(false, f.clock.Now())
	if st := f.eval(); st.Heating || st.PowerOn {
		t.Fatalf("power off must stop heating regardless of temperature: %+v", st)
	}
	f.heating(t, false)
}

func TestZoneMinOffTime(t *testing.T) {
	conf := testZoneConfig()
	conf.MinOffSeconds = 300
	f := newZoneFixture(t, conf, nil)

	f.temp(20.6)
	f.eval()
	f.heating(t, true)

	f.temp(21.4)
	f.eval()
	f.heating(t, false)

	// cold again right away, but the compressor needs its rest
	f.temp(20.5)
	if st := f.eval(); st.Heating {
		t.Fatal("restarted inside the minimum off time")
	}

	f.clock.Advance(5 * time.Minute)
	f.temp(20.5)
	if st := f.eval(); !st.Heating {
		t.Fatal("expected restart after the minimum off time")
	}
}

func TestZoneMinOnTime(t *testing.T) {
	conf := testZoneConfig()
	conf.MinOnSeconds = 300
	f := newZoneFixture(t, conf, nil)

	f.temp(20.6)
	f.eval()
	f.heating(t, true)

	// warm enough to stop, but not yet allowed
	f.clock.Advance(time.Minute)
	f.temp(21.4)
	if st := f.eval(); !st.Heating {
		t.Fatal("stopped inside the minimum on time")
	}

	f.clock.Advance(5 * time.Minute)
	f.temp(21.4)
	if st := f.eval(); st.Heating {
		t.Fatal("expected stop after the minimum on time")
	}
}

func TestZoneAutoOnOff(t *testing.T) {
	conf := testZoneConfig()
	conf.AutoOnOffEnabled = true
	conf.AutoOnTemp = 10.0
	conf.AutoOffTemp = 18.0
	f := newZoneFixture(t, conf, nil)
	f.zone.setPower(false, f.clock.Now())
	f.zone.resetOverride()

	f.temp(20.0)
	f.outdoor(5.0)
	if st := f.eval(); !st.PowerOn {
		t.Fatal("outdoor 5.0 must force the zone on")
	}

	f.outdoor(20.0)
	if st := f.eval(); st.PowerOn {
		t.Fatal("outdoor 20.0 must force the zone off")
	}
}

func TestZoneAutoOnOffDeadband(t *testing.T) {
	conf := testZoneConfig()
	conf.AutoOnOffEnabled = true
	conf.AutoOnTemp = 10.0
	conf.AutoOffTemp = 18.0
	f := newZoneFixture(t, conf, nil)
	f.zone.resetOverride()

	f.temp(20.0)
	f.outdoor(17.9)
	if st := f.eval(); !st.PowerOn {
		t.Fatal("17.9 is between the thresholds, power state must hold")
	}

	// crosses the off threshold but moved less than the deadband
	f.outdoor(18.2)
	if st := f.eval(); !st.PowerOn {
		t.Fatal("a 0.3 degree move must not be re-evaluated")
	}

	f.outdoor(18.5)
	if st := f.eval(); st.PowerOn {
		t.Fatal("a 0.6 degree move above the off threshold must force off")
	}
}

func TestZoneManualOverrideSuppressesAutoOnOff(t *testing.T) {
	conf := testZoneConfig()
	conf.AutoOnOffEnabled = true
	conf.AutoOnTemp = 10.0
	conf.AutoOffTemp = 18.0
	f := newZoneFixture(t, conf, nil)

	f.temp(20.0)
	f.outdoor(20.0)

	// user forces the zone on; warm weather must not fight them
	f.zone.setPower(true, f.clock.Now())
	if st := f.eval(); !st.PowerOn || !st.Override {
		t.Fatalf("override must hold the zone on: %+v", st)
	}

	// reset returns the zone to automatic control on the same cycle
	f.zone.resetOverride()
	if st := f.eval(); st.PowerOn {
		t.Fatal("after reset the sticky auto-off decision must apply")
	}
}

func TestZoneMotionSetback(t *testing.T) {
	conf := testZoneConfig()
	conf.MotionSensor = "living/motion"
	conf.MotionTimeoutSeconds = 1800
	f := newZoneFixture(t, conf, nil)

	// nobody seen: the away preset bounds the effective target
	f.temp(20.6)
	if st := f.eval(); st.Heating {
		t.Fatal("vacant zone must evaluate against the away target")
	}

	f.zone.applySensor(roleMotion, events.SensorUpdate{
		Entity: "living/motion", Value: 1, Valid: true, Time: f.clock.Now(),
	})
	if st := f.eval(); !st.Heating {
		t.Fatal("motion restores the configured target")
	}
}

func TestZoneValveHeldThroughCentralOffDelay(t *testing.T) {
	conf := testZoneConfig()
	conf.CentralHeater = "mqtt:central"
	conf.CentralOnDelaySeconds = 0
	conf.CentralOffDelaySeconds = 120

	clock := newFakeClock()
	heater := &switchRecorder{}
	central := &switchRecorder{}
	coord := newCoordinator("mqtt:central", central.Switch, clock)
	zone := NewZoneController(conf, heater.Switch, coord, clock)
	zone.restore(&PersistedZone{PowerOn: true, TargetC: 21.0, Preset: PresetHome})

	feed := func(v float64) {
		zone.applySensor(roleTemp, events.SensorUpdate{
			Entity: "living/temp", Value: v, Valid: true, Time: clock.Now(),
		})
	}

	feed(20.0)
	zone.Evaluate(clock.Now())
	if on, ok := heater.last(); !ok || !on {
		t.Fatal("zone valve should be open")
	}
	if on, ok := central.last(); !ok || !on {
		t.Fatal("central source should be on")
	}

	// satisfied: demand released, but the valve stays open so the
	// source keeps flow through its off-delay
	feed(21.4)
	zone.Evaluate(clock.Now())
	if on, _ := heater.last(); !on {
		t.Fatal("valve closed before the central off-delay elapsed")
	}

	clock.Advance(2 * time.Minute)
	if on, _ := central.last(); on {
		t.Fatal("central source should be off after the off-delay")
	}
	if on, _ := heater.last(); on {
		t.Fatal("valve should close once the off-delay elapsed")
	}
}

func TestZoneValveClosesNowWhenOthersStillDemand(t *testing.T) {
	conf := testZoneConfig()
	conf.CentralHeater = "mqtt:central"
	conf.CentralOffDelaySeconds = 120

	clock := newFakeClock()
	heater := &switchRecorder{}
	central := &switchRecorder{}
	coord := newCoordinator("mqtt:central", central.Switch, clock)
	coord.Register("other", 0, 120*time.Second)

	zone := NewZoneController(conf, heater.Switch, coord, clock)
	zone.restore(&PersistedZone{PowerOn: true, TargetC: 21.0, Preset: PresetHome})

	zone.applySensor(roleTemp, events.SensorUpdate{
		Entity: "living/temp", Value: 20.0, Valid: true, Time: clock.Now(),
	})
	zone.Evaluate(clock.Now())

	zone.applySensor(roleTemp, events.SensorUpdate{
		Entity: "living/temp", Value: 21.4, Valid: true, Time: clock.Now(),
	})
	zone.Evaluate(clock.Now())

	if on, _ := heater.last(); on {
		t.Fatal("valve must close immediately while another zone holds demand")
	}
	if on, _ := central.last(); !on {
		t.Fatal("central source must stay on for the other zone")
	}
}
