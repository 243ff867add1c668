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

package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast?latitude=%s&longitude=%s&current=temperature_2m"

// Entry is one history point.
type Entry struct {
	Time  time.Time `json:"time"`
	TempC float64   `json:"temp_c"`
}

// Weather polls the Open-Meteo forecast API and publishes the outdoor
// temperature. It is the last fallback of the zones' outdoor resolution
// chain, behind the physical outdoor sensors.
type Weather struct {
	eb        *eventbus.Bus
	log       *logger.Logger
	url       string
	poll      time.Duration
	threshold float64 // delta in degC that triggers save+publish
	http      *http.Client

	mu        sync.RWMutex
	history   []Entry
	lastSaved *Entry
}

func New(appConf *config.Config) *Weather {
	poll := time.Duration(appConf.Weather.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 5 * time.Minute
	}
	return &Weather{
		eb:        appConf.EventBus,
		log:       logger.New("Weather"),
		url:       fmt.Sprintf(openMeteoURL, appConf.Weather.Latitude, appConf.Weather.Longitude),
		poll:      poll,
		threshold: 0.33,
		http:      &http.Client{Timeout: 15 * time.Second},
		history:   make([]Entry, 0, 1024),
	}
}

func (w *Weather) Run(ctx context.Context) {
	w.log.Info("Running...")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stopped")
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
	} `json:"current"`
}

func (w *Weather) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := w.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("open-meteo: status %d", resp.StatusCode)
	}
	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("open-meteo: decode: %w", err)
	}
	return body.Current.Temperature, nil
}

// pollOnce fetches the current temperature, decides whether to save and
// publish, and maintains the 24h history.
func (w *Weather) pollOnce(ctx context.Context) error {
	now := time.Now()

	temp, err := w.fetch(ctx)
	if err != nil {
		// transient, next poll retries; zones fall back to sensors
		w.log.Error("poll: %v", err)
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	shouldSave := w.lastSaved == nil
	if !shouldSave {
		delta := temp - w.lastSaved.TempC
		if delta < 0 {
			delta = -delta
		}
		shouldSave = delta >= w.threshold
	}

	if shouldSave {
		entry := Entry{Time: now, TempC: temp}
		w.history = append(w.history, entry)
		w.lastSaved = &entry

		// prune history older than 24h
		cutoff := now.Add(-24 * time.Hour)
		idx := sort.Search(len(w.history), func(i int) bool {
			return !w.history[i].Time.Before(cutoff)
		})
		if idx > 0 {
			w.history = append([]Entry(nil), w.history[idx:]...)
		}
	}

	// publish every poll so freshness tracking sees the source alive
	w.eb.Publish(events.TopicWeather, events.WeatherUpdate{
		Time:         now,
		TemperatureC: temp,
	})
	return nil
}

var htmlPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Outdoor Temperature (24h)</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial; padding: 24px }
.container { max-width: 900px; margin: 0 auto }
.card { border-radius: 8px; padding: 16px; box-shadow: 0 2px 6px rgba(0,0,0,0.08) }
</style>
</head>
<body>
<div class="container">
<h1>Outdoor Temperature (last 24h)</h1>
<div class="card">
<canvas id="chart" width="860" height="300"></canvas>
</div>
<p>Auto-updates every 30s.</p>
</div>

<!-- Chart.js from CDN -->
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<script>
async function fetchData() {
  const res = await fetch('./api/history');
  const a = await res.json();
  return a.map(x => ({t: new Date(x.time), y: x.temp_c}));
}

let chart;
async function render() {
  const data = await fetchData();
  const ctx = document.getElementById('chart').getContext('2d');
  const labels = data.map(d => d.t.toLocaleTimeString());
  const values = data.map(d => d.y);
  if (!chart) {
    chart = new Chart(ctx, {
      type: 'line',
      data: {
        labels,
        datasets: [{ label: 'C', data: values, tension: 0.2 }]
      },
      options: { scales: { x: { display: true }, y: { beginAtZero: false } } }
    });
  } else {
    chart.data.labels = labels;
    chart.data.datasets[0].data = values;
    chart.update();
  }
}

render();
setInterval(render, 30_000);
</script>
</body>
</html>`

// ServeHTTP serves the 24h chart page and the raw history.
func (w *Weather) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "", "/":
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write([]byte(htmlPage))
	case "/api/history":
		w.mu.RLock()
		hist := make([]Entry, len(w.history))
		copy(hist, w.history)
		w.mu.RUnlock()

		rw.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(rw)
		enc.SetIndent("", "  ")
		_ = enc.Encode(hist)
	default:
		rw.WriteHeader(http.StatusNotFound)
		_, _ = rw.Write([]byte("not found"))
	}
}

// LastSaved returns the last saved entry (copy) or nil if none.
func (w *Weather) LastSaved() *Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastSaved == nil {
		return nil
	}
	c := *w.lastSaved
	return &c
}
