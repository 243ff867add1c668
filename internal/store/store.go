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

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Horia73/adaptive-thermostat/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS zone_state (
	zone_id        TEXT PRIMARY KEY,
	power_on       INTEGER NOT NULL,
	target         REAL    NOT NULL,
	preset         TEXT    NOT NULL,
	override       INTEGER NOT NULL,
	override_since INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);`

// Store persists per-zone user state in a local sqlite file so power,
// target and override survive a restart.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Load returns the persisted state of a zone, or nil when the zone has
// never been saved.
func (s *Store) Load(zoneID string) (*engine.PersistedZone, error) {
	row := s.db.QueryRow(`
		SELECT power_on, target, preset, override, override_since
		FROM zone_state WHERE zone_id = ?`, zoneID)

	var p engine.PersistedZone
	var overrideSince int64
	err := row.Scan(&p.PowerOn, &p.TargetC, &p.Preset, &p.Override, &overrideSince)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zoneID, err)
	}
	if overrideSince > 0 {
		p.OverrideSince = time.Unix(overrideSince, 0)
	}
	return &p, nil
}

func (s *Store) Save(zoneID string, p engine.PersistedZone) error {
	var overrideSince int64
	if !p.OverrideSince.IsZero() {
		overrideSince = p.OverrideSince.Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO zone_state (zone_id, power_on, target, preset, override, override_since, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone_id) DO UPDATE SET
			power_on = excluded.power_on,
			target = excluded.target,
			preset = excluded.preset,
			override = excluded.override,
			override_since = excluded.override_since,
			updated_at = excluded.updated_at`,
		zoneID, p.PowerOn, p.TargetC, p.Preset, p.Override, overrideSince,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save zone %q: %w", zoneID, err)
	}
	return nil
}
