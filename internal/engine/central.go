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

	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

// Switch commands an on/off actuator. Implementations publish an MQTT
// command or write a modbus register.
type Switch func(on bool) error

type zoneDelays struct {
	onDelay  time.Duration
	offDelay time.Duration
}

// Coordinator owns one shared central heat source. Zones register demand
// when they start heating and deregister when they stop; the coordinator
// turns the source on only after demand has persisted for the on-delay,
// and off only after the last demand has been gone for the off-delay.
// A demand arriving during the off-delay cancels the pending stop without
// cycling the source.
type Coordinator struct {
	mu    sync.Mutex
	ref   string
	clock Clock
	sw    Switch
	log   *logger.Logger

	demand      map[string]zoneDelays
	commandedOn bool

	onTimer Timer
	onGen   uint64

	offTimer Timer
	offGen   uint64

	// Longest off-delay seen from any registered zone. The shutdown of
	// the last zone uses this, protecting the source for the most
	// conservative zone sharing it.
	maxOffDelay time.Duration
}

func newCoordinator(ref string, sw Switch, clock Clock) *Coordinator {
	return &Coordinator{
		ref:    ref,
		clock:  clock,
		sw:     sw,
		log:    logger.New("Central"),
		demand: make(map[string]zoneDelays),
	}
}

// Register records heat demand from a zone. The first demand arms the
// on-delay; any demand cancels a pending off.
func (c *Coordinator) Register(zoneID string, onDelay, offDelay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := zoneDelays{onDelay, offDelay}
	if prev, ok := c.demand[zoneID]; ok && prev == d {
		return
	}
	for id, other := range c.demand {
		if id != zoneID && other != d {
			c.log.Error("%s: warning: zone %q delays (on %s, off %s) differ from zone %q (on %s, off %s), longest off-delay wins",
				c.ref, zoneID, onDelay, offDelay, id, other.onDelay, other.offDelay)
			break
		}
	}
	wasEmpty := len(c.demand) == 0
	c.demand[zoneID] = d
	if offDelay > c.maxOffDelay {
		c.maxOffDelay = offDelay
	}

	if c.offTimer != nil {
		c.offTimer.Stop()
		c.offTimer = nil
		c.offGen++
	}
	if c.commandedOn || c.onTimer != nil {
		return
	}
	if !wasEmpty {
		c.log.Error("%s: demand present but source idle, re-arming on-delay", c.ref)
	}
	if onDelay <= 0 {
		c.commandOn()
		return
	}
	c.onGen++
	gen := c.onGen
	c.onTimer = c.clock.AfterFunc(onDelay, func() { c.fireOn(gen) })
}

// Deregister removes a zone's demand. When the last demand goes away the
// off-delay starts; if the source never actually turned on, the pending
// on is simply cancelled.
func (c *Coordinator) Deregister(zoneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.demand[zoneID]; !ok {
		return
	}
	delete(c.demand, zoneID)
	if len(c.demand) > 0 {
		return
	}

	if c.onTimer != nil {
		c.onTimer.Stop()
		c.onTimer = nil
		c.onGen++
	}
	if !c.commandedOn {
		return
	}
	if c.maxOffDelay <= 0 {
		c.commandOff()
		return
	}
	c.offGen++
	gen := c.offGen
	c.offTimer = c.clock.AfterFunc(c.maxOffDelay, func() { c.fireOff(gen) })
}

func (c *Coordinator) fireOn(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.onGen || c.onTimer == nil {
		return
	}
	c.onTimer = nil
	if len(c.demand) == 0 || c.commandedOn {
		return
	}
	c.commandOn()
}

func (c *Coordinator) fireOff(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.offGen || c.offTimer == nil {
		return
	}
	c.offTimer = nil
	if len(c.demand) > 0 || !c.commandedOn {
		return
	}
	c.commandOff()
	c.maxOffDelay = 0
}

func (c *Coordinator) commandOn() {
	c.commandedOn = true
	if err := c.sw(true); err != nil {
		c.log.Error("%s: switch on: %v", c.ref, err)
	}
}

func (c *Coordinator) commandOff() {
	c.commandedOn = false
	if err := c.sw(false); err != nil {
		c.log.Error("%s: switch off: %v", c.ref, err)
	}
}

// HasDemand reports whether any zone currently holds demand.
func (c *Coordinator) HasDemand() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.demand) > 0
}

// CommandedOn reports the last state commanded to the source.
func (c *Coordinator) CommandedOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandedOn
}

// Shutdown cancels pending timers and clears demand. The source is left
// in its last commanded state, never force-toggled on the way out.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onTimer != nil {
		c.onTimer.Stop()
		c.onTimer = nil
		c.onGen++
	}
	if c.offTimer != nil {
		c.offTimer.Stop()
		c.offTimer = nil
		c.offGen++
	}
	c.demand = make(map[string]zoneDelays)
}

// CoordinatorRegistry deduplicates coordinators by actuator reference so
// zones naming the same central heater share one Coordinator.
type CoordinatorRegistry struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]*Coordinator
}

func NewCoordinatorRegistry(clock Clock) *CoordinatorRegistry {
	return &CoordinatorRegistry{
		clock:   clock,
		entries: make(map[string]*Coordinator),
	}
}

// Acquire returns the coordinator for ref, creating it on first use.
func (r *CoordinatorRegistry) Acquire(ref string, sw Switch) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[ref]; ok {
		return c
	}
	c := newCoordinator(ref, sw, r.clock)
	r.entries[ref] = c
	return c
}

// ShutdownAll stops every coordinator.
func (r *CoordinatorRegistry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.entries {
		c.Shutdown()
	}
}
