// Package export writes charge detail records and KPI aggregates in
// formats suitable for billing and reporting tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/model"
)

// WriteJSON writes the records to w in JSON format.
func WriteJSON(w io.Writer, cdrs []model.ChargeDetailRecord) error {
	enc := json.NewEncoder(w)
	return enc.Encode(cdrs)
}

// WriteCSV writes the records to w in CSV format.
func WriteCSV(w io.Writer, cdrs []model.ChargeDetailRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"session_id", "operator_id", "evse_id", "provider_id", "session_start", "session_end", "energy_kwh", "duration_s"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range cdrs {
		rec := []string{
			string(c.SessionID),
			string(c.OperatorID),
			string(c.EVSEID),
			string(c.ProviderID),
			c.SessionStart.UTC().Format(time.RFC3339),
			c.SessionEnd.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.EnergyKWh(), 'f', -1, 64),
			strconv.FormatFloat(c.Duration().Seconds(), 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteKPICSV writes daily KPI aggregates to w in CSV format.
func WriteKPICSV(w io.Writer, recs []kpi.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"operator_id", "day", "sessions", "energy_kwh", "avg_energy_kwh"}); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			r.OperatorID,
			r.Date.Format("2006-01-02"),
			strconv.Itoa(r.Sessions),
			strconv.FormatFloat(r.EnergyKWh, 'f', -1, 64),
			strconv.FormatFloat(r.AvgEnergyKWh(), 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
