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

package history

import (
	"context"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

// Service writes one point per zone per interval to influxdb so target,
// temperature and runtime can be graphed over weeks. Only the latest
// snapshot per zone between ticks is kept.
type Service struct {
	log      *logger.Logger
	bus      *eventbus.Bus
	interval time.Duration

	client influxdb2.Client
	write  api.WriteAPIBlocking

	mu     sync.Mutex
	latest map[string]events.ZoneState
}

func New(appConf *config.Config) *Service {
	h := &appConf.History
	client := influxdb2.NewClient(h.InfluxURL, h.InfluxToken)
	return &Service{
		log:      logger.New("History"),
		bus:      appConf.EventBus,
		interval: time.Duration(h.IntervalSeconds) * time.Second,
		client:   client,
		write:    client.WriteAPIBlocking(h.InfluxOrg, h.InfluxBucket),
		latest:   make(map[string]events.ZoneState),
	}
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.client.Close()

	stateCh, unsub := s.bus.Subscribe(ctx, events.TopicZoneState, true)
	defer unsub()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			s.log.Info("Stopped")
			return
		case ev, ok := <-stateCh:
			if !ok {
				return
			}
			if st, ok := ev.(events.ZoneState); ok {
				s.mu.Lock()
				s.latest[st.ZoneID] = st
				s.mu.Unlock()
			}
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	batch := make([]events.ZoneState, 0, len(s.latest))
	for _, st := range s.latest {
		batch = append(batch, st)
	}
	s.mu.Unlock()

	for _, st := range batch {
		fields := map[string]any{
			"target":   st.TargetC,
			"heating":  st.Heating,
			"power_on": st.PowerOn,
			"override": st.Override,
			"degraded": st.Degraded,
		}
		if st.HasTemp {
			fields["temperature"] = st.CurrentC
		}
		if st.HasOutdoor {
			fields["outdoor"] = st.OutdoorC
		}
		if st.HasHumidity {
			fields["humidity"] = st.Humidity
		}
		point := influxdb2.NewPoint("zone_state",
			map[string]string{"zone_id": st.ZoneID, "zone_name": st.Name},
			fields, st.Time)
		if err := s.write.WritePoint(ctx, point); err != nil {
			// next flush retries with fresher data
			s.log.Error("write point %s: %v", st.ZoneID, err)
			return
		}
	}
}
