// Package persistence provides SQLite-backed run history: per-tick metrics
// rows and per-region economy rows, queryable after the run for analysis.
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/evanwolo/emergent-civ-sim/internal/econ"
	"github.com/evanwolo/emergent-civ-sim/internal/sim"
)

// DB wraps a SQLite connection for run history storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		polarization_mean REAL NOT NULL,
		polarization_std REAL NOT NULL,
		avg_openness REAL NOT NULL,
		avg_conformity REAL NOT NULL,
		welfare REAL NOT NULL,
		inequality REAL NOT NULL,
		hardship REAL NOT NULL,
		trade_volume REAL NOT NULL,
		population INTEGER NOT NULL,
		PRIMARY KEY (run_id, generation)
	);

	CREATE TABLE IF NOT EXISTS region_econ (
		run_id TEXT NOT NULL,
		generation INTEGER NOT NULL,
		region INTEGER NOT NULL,
		system TEXT NOT NULL,
		development REAL NOT NULL,
		welfare REAL NOT NULL,
		hardship REAL NOT NULL,
		inequality REAL NOT NULL,
		population INTEGER NOT NULL,
		prices_json TEXT NOT NULL,
		PRIMARY KEY (run_id, generation, region)
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_generation ON metrics(generation);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveMetrics writes the metrics row for (run, generation), replacing any
// existing row with that key.
func (db *DB) SaveMetrics(runID string, m sim.Metrics) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO metrics
		(run_id, generation, polarization_mean, polarization_std, avg_openness,
		 avg_conformity, welfare, inequality, hardship, trade_volume, population)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, m.Generation, m.PolarizationMean, m.PolarizationStd, m.AvgOpenness,
		m.AvgConformity, m.Welfare, m.Inequality, m.Hardship, m.TradeVolume, m.Population)
	return err
}

// SaveRegions writes one economy row per region for (run, generation),
// replacing existing rows with the same key.
func (db *DB) SaveRegions(runID string, generation uint64, regions []econ.Region, pops []uint32) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range regions {
		reg := &regions[i]
		prices, err := json.Marshal(reg.Prices)
		if err != nil {
			return err
		}
		pop := uint32(0)
		if i < len(pops) {
			pop = pops[i]
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO region_econ
			(run_id, generation, region, system, development, welfare, hardship,
			 inequality, population, prices_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, generation, reg.ID, reg.System.String(), reg.Development,
			reg.Welfare, reg.Hardship, reg.Inequality, pop, string(prices)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetMeta records a run metadata key/value pair.
func (db *DB) SetMeta(runID, key, value string) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO run_meta (run_id, key, value) VALUES (?, ?, ?)`,
		runID, key, value)
	return err
}

// GetMeta fetches a run metadata value.
func (db *DB) GetMeta(runID, key string) (string, error) {
	var value string
	err := db.conn.Get(&value, `SELECT value FROM run_meta WHERE run_id = ? AND key = ?`, runID, key)
	return value, err
}
