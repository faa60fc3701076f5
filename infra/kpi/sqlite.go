package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	core "github.com/kilianp07/roaming/core/kpi"
)

// SQLiteStore persists KPI records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS cdr_kpi (
        operator_id TEXT,
        day INTEGER,
        sessions INTEGER,
        energy REAL,
        duration REAL,
        PRIMARY KEY(operator_id, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts or updates the KPI record.
func (s *SQLiteStore) Add(r core.Record) error {
	d := core.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO cdr_kpi (operator_id, day, sessions, energy, duration)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(operator_id, day) DO UPDATE SET
            sessions = sessions + excluded.sessions,
            energy = energy + excluded.energy,
            duration = duration + excluded.duration`,
		r.OperatorID, d.Unix(), r.Sessions, r.EnergyKWh, r.DurationSec)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(operatorID string, start, end time.Time) ([]core.Record, error) {
	start = core.Day(start)
	end = core.Day(end)
	rows, err := s.db.Query(`SELECT operator_id, day, sessions, energy, duration
        FROM cdr_kpi WHERE operator_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		operatorID, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []core.Record
	for rows.Next() {
		var (
			op       string
			ts       int64
			sessions int
			energy   float64
			duration float64
		)
		if err := rows.Scan(&op, &ts, &sessions, &energy, &duration); err != nil {
			return nil, err
		}
		res = append(res, core.Record{
			OperatorID:  op,
			Date:        time.Unix(ts, 0).UTC(),
			Sessions:    sessions,
			EnergyKWh:   energy,
			DurationSec: duration,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
