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

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

// Service exports per-zone gauges for prometheus scraping, fed from the
// zone state snapshots on the event bus.
type Service struct {
	log *logger.Logger
	bus *eventbus.Bus
	reg *prometheus.Registry

	temp     *prometheus.GaugeVec
	target   *prometheus.GaugeVec
	outdoor  *prometheus.GaugeVec
	humidity *prometheus.GaugeVec
	heating  *prometheus.GaugeVec
	power    *prometheus.GaugeVec
	override *prometheus.GaugeVec
	degraded *prometheus.GaugeVec
	window   *prometheus.GaugeVec
}

var zoneLabels = []string{"zone_id", "zone_name"}

func gauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thermostat",
		Name:      name,
		Help:      help,
	}, zoneLabels)
}

func New(appConf *config.Config) *Service {
	s := &Service{
		log:      logger.New("Metrics"),
		bus:      appConf.EventBus,
		reg:      prometheus.NewRegistry(),
		temp:     gauge("zone_temperature_celsius", "Current zone temperature."),
		target:   gauge("zone_target_celsius", "Target zone temperature."),
		outdoor:  gauge("zone_outdoor_celsius", "Fused outdoor temperature seen by the zone."),
		humidity: gauge("zone_humidity_percent", "Zone relative humidity."),
		heating:  gauge("zone_heating", "1 while the zone heater is commanded on."),
		power:    gauge("zone_power_on", "1 while the zone is powered on."),
		override: gauge("zone_manual_override", "1 while manual override is active."),
		degraded: gauge("zone_degraded", "1 while the zone runs without required sensor data."),
		window:   gauge("zone_window_alert", "1 while an open window is detected or recovering."),
	}
	s.reg.MustRegister(s.temp, s.target, s.outdoor, s.humidity,
		s.heating, s.power, s.override, s.degraded, s.window)
	return s
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")

	stateCh, unsub := s.bus.Subscribe(ctx, events.TopicZoneState, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopped")
			return
		case ev, ok := <-stateCh:
			if !ok {
				return
			}
			if st, ok := ev.(events.ZoneState); ok {
				s.update(st)
			}
		}
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (s *Service) update(st events.ZoneState) {
	labels := prometheus.Labels{"zone_id": st.ZoneID, "zone_name": st.Name}
	if st.HasTemp {
		s.temp.With(labels).Set(st.CurrentC)
	}
	if st.HasOutdoor {
		s.outdoor.With(labels).Set(st.OutdoorC)
	}
	if st.HasHumidity {
		s.humidity.With(labels).Set(st.Humidity)
	}
	s.target.With(labels).Set(st.TargetC)
	s.heating.With(labels).Set(b2f(st.Heating))
	s.power.With(labels).Set(b2f(st.PowerOn))
	s.override.With(labels).Set(b2f(st.Override))
	s.degraded.With(labels).Set(b2f(st.Degraded))
	s.window.With(labels).Set(b2f(st.WindowAlert != ""))
}

// Handler returns the scrape endpoint for the root server.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}
