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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/gorilla/websocket"
)

// wsHub pushes zone snapshots to connected dashboard clients.
type wsHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func newWSHub() *wsHub {
	return &wsHub{conns: make(map[*websocket.Conn]bool)}
}

func (h *wsHub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *wsHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.Close()
}

// broadcast sends the snapshot to every client, dropping clients whose
// write fails.
func (h *wsHub) broadcast(st events.ZoneState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteJSON(st); err != nil {
			delete(h.conns, c)
			c.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeHTTP exposes the dashboard, the zone JSON API and the live
// websocket feed. Mounted under a prefix by the root server.
func (s *Service) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "" || r.URL.Path == "/":
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write([]byte(dashboardPage))
	case r.URL.Path == "/api/zones" && r.Method == http.MethodGet:
		writeJSON(rw, s.ZoneStates())
	case r.URL.Path == "/ws":
		s.serveWS(rw, r)
	default:
		s.serveZoneCommand(rw, r)
	}
}

func (s *Service) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Error("ws upgrade: %v", err)
		return
	}
	s.hub.add(conn)
	for _, st := range s.ZoneStates() {
		if err := conn.WriteJSON(st); err != nil {
			s.hub.remove(conn)
			return
		}
	}
	// read loop only to observe the close
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// serveZoneCommand handles POST /api/zones/{id}/{action}.
func (s *Service) serveZoneCommand(rw http.ResponseWriter, r *http.Request) {
	zoneID, action, ok := splitCommandPath(r.URL.Path)
	if !ok {
		http.NotFound(rw, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action {
	case "target":
		var body struct {
			Temperature float64 `json:"temperature"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		err = s.SetTarget(zoneID, body.Temperature)
	case "preset":
		var body struct {
			Preset string `json:"preset"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		err = s.SetPreset(zoneID, body.Preset)
	case "power":
		var body struct {
			On bool `json:"on"`
		}
		if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		err = s.SetPower(zoneID, body.On)
	case "reset_override":
		err = s.ResetManualOverride(zoneID)
	default:
		http.NotFound(rw, r)
		return
	}

	switch {
	case err == nil:
		rw.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrUnknownZone):
		http.Error(rw, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidPreset), errors.Is(err, ErrInvalidTemperature):
		http.Error(rw, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(rw, err.Error(), http.StatusInternalServerError)
	}
}

// splitCommandPath extracts {id} and {action} from /api/zones/{id}/{action}.
func splitCommandPath(path string) (zoneID, action string, ok bool) {
	const prefix = "/api/zones/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	zoneID, action, found := strings.Cut(path[len(prefix):], "/")
	if !found || zoneID == "" || action == "" {
		return "", "", false
	}
	return zoneID, action, true
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

var dashboardPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Heating Zones</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial; padding: 24px }
.container { max-width: 900px; margin: 0 auto }
.card { border-radius: 8px; padding: 16px; margin-bottom: 12px; box-shadow: 0 2px 6px rgba(0,0,0,0.08) }
.heating { border-left: 6px solid #e2574c }
.idle { border-left: 6px solid #b8bcc2 }
.off { border-left: 6px solid #555; opacity: 0.6 }
.badge { font-size: 12px; padding: 2px 8px; border-radius: 10px; background: #eee; margin-left: 6px }
button { margin-right: 6px }
</style>
</head>
<body>
<div class="container">
<h1>Heating Zones</h1>
<div id="zones"></div>
</div>

<script>
const zones = {};

function render() {
  const root = document.getElementById('zones');
  root.innerHTML = '';
  for (const id of Object.keys(zones).sort()) {
    const z = zones[id];
    const div = document.createElement('div');
    div.className = 'card ' + (!z.power_on ? 'off' : (z.heating ? 'heating' : 'idle'));
    let badges = '';
    if (z.manual_override) badges += '<span class="badge">override</span>';
    if (z.degraded) badges += '<span class="badge">degraded</span>';
    if (z.window_alert) badges += '<span class="badge">window ' + z.window_alert + '</span>';
    if (z.door_window_open) badges += '<span class="badge">door open</span>';
    div.innerHTML =
      '<h3>' + z.name + badges + '</h3>' +
      '<p>' + (z.has_temperature ? z.current_temperature.toFixed(1) : '--') +
      ' &rarr; ' + z.target_temperature.toFixed(1) + ' &deg;C' +
      (z.has_outdoor ? ' (outdoor ' + z.outdoor_temperature.toFixed(1) + ')' : '') + '</p>' +
      '<p>' +
      '<button onclick="setPower(\'' + id + '\', ' + !z.power_on + ')">' +
        (z.power_on ? 'Turn off' : 'Turn on') + '</button>' +
      '<button onclick="setPreset(\'' + id + '\', \'home\')">Home</button>' +
      '<button onclick="setPreset(\'' + id + '\', \'sleep\')">Sleep</button>' +
      '<button onclick="setPreset(\'' + id + '\', \'away\')">Away</button>' +
      (z.manual_override ?
        '<button onclick="resetOverride(\'' + id + '\')">Auto</button>' : '') +
      '</p>';
    root.appendChild(div);
  }
}

function post(path, body) {
  fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'},
    body: body ? JSON.stringify(body) : null});
}
function setPower(id, on)    { post('./api/zones/' + id + '/power', {on}); }
function setPreset(id, p)    { post('./api/zones/' + id + '/preset', {preset: p}); }
function resetOverride(id)   { post('./api/zones/' + id + '/reset_override'); }

async function load() {
  const res = await fetch('./api/zones');
  for (const z of await res.json()) zones[z.zone_id] = z;
  render();
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + location.pathname.replace(/\/$/, '') + '/ws');
  ws.onmessage = (ev) => { const z = JSON.parse(ev.data); zones[z.zone_id] = z; render(); };
  ws.onclose = () => setTimeout(connect, 5000);
}

load();
connect();
</script>
</body>
</html>`
