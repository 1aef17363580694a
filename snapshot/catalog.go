// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dboth/thermalplant/thermal"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	label        TEXT NOT NULL DEFAULT '',
	taken_at     INTEGER NOT NULL,
	camera       TEXT NOT NULL DEFAULT '',
	temperatures TEXT NOT NULL DEFAULT '',
	min_x INTEGER, min_y INTEGER, min_c REAL,
	max_x INTEGER, max_y INTEGER, max_c REAL,
	center_x INTEGER, center_y INTEGER, center_c REAL
);
CREATE INDEX IF NOT EXISTS snapshots_taken_at ON snapshots(taken_at);
`

// Catalog is a sqlite index of the saved snapshots.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Add records e and sets its ID.
func (c *Catalog) Add(ctx context.Context, e *Entry) error {
	args := []interface{}{e.Name, e.Label, e.Time.UnixNano(), e.Camera, e.Temperatures}
	if i := e.Info; i != nil {
		args = append(args,
			i.Min.Point.X, i.Min.Point.Y, i.Min.Celsius,
			i.Max.Point.X, i.Max.Point.Y, i.Max.Celsius,
			i.Center.Point.X, i.Center.Point.Y, i.Center.Celsius)
	} else {
		args = append(args, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, label, taken_at, camera, temperatures,
			min_x, min_y, min_c, max_x, max_y, max_c, center_x, center_y, center_c)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("snapshot: catalog: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

// List returns up to limit entries, the most recent first. limit <= 0 returns
// all of them.
func (c *Catalog) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, label, taken_at, camera, temperatures,
			min_x, min_y, min_c, max_x, max_y, max_c, center_x, center_y, center_c
		FROM snapshots ORDER BY taken_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: catalog: %w", err)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var ns int64
		var pts [6]sql.NullInt64
		var cs [3]sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &e.Label, &ns, &e.Camera, &e.Temperatures,
			&pts[0], &pts[1], &cs[0], &pts[2], &pts[3], &cs[1], &pts[4], &pts[5], &cs[2]); err != nil {
			return nil, err
		}
		e.Time = time.Unix(0, ns)
		if cs[0].Valid {
			spot := func(i int) thermal.Spot {
				return thermal.Spot{Point: image.Pt(int(pts[2*i].Int64), int(pts[2*i+1].Int64)), Celsius: cs[i].Float64}
			}
			e.Info = &thermal.CalibrationInfo{Min: spot(0), Max: spot(1), Center: spot(2)}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
