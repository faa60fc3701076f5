// Package kpi aggregates charge detail records into daily per operator
// figures and summary statistics.
package kpi

import (
	"time"

	"github.com/kilianp07/roaming/core/model"
)

// Record aggregates the charge detail records of one operator and day.
type Record struct {
	OperatorID  string    `json:"operator_id"`
	Date        time.Time `json:"date"`
	Sessions    int       `json:"sessions"`
	EnergyKWh   float64   `json:"energy_kwh"`
	DurationSec float64   `json:"duration_sec"`
}

// AvgEnergyKWh returns the mean energy delivered per session.
func (r Record) AvgEnergyKWh() float64 {
	if r.Sessions == 0 {
		return 0
	}
	return r.EnergyKWh / float64(r.Sessions)
}

// AvgDuration returns the mean session duration.
func (r Record) AvgDuration() time.Duration {
	if r.Sessions == 0 {
		return 0
	}
	return time.Duration(r.DurationSec / float64(r.Sessions) * float64(time.Second))
}

// FromCDR turns one record into a single session contribution dated by the
// session end.
func FromCDR(cdr model.ChargeDetailRecord) Record {
	date := cdr.SessionEnd
	if date.IsZero() {
		date = cdr.SessionStart
	}
	return Record{
		OperatorID:  string(cdr.OperatorID),
		Date:        Day(date),
		Sessions:    1,
		EnergyKWh:   cdr.EnergyKWh(),
		DurationSec: cdr.Duration().Seconds(),
	}
}

// Store persists KPI records.
type Store interface {
	Add(Record) error
	Query(operatorID string, start, end time.Time) ([]Record, error)
}

// Day aligns t to the start of its day in UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
