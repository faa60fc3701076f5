package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/roaming/core/kpi"
)

// NewKPIHandler exposes daily charging KPIs via GET /api/operators/{id}/kpis.
func NewKPIHandler(store kpi.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		start, _ := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		end, _ := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if end.IsZero() {
			end = time.Now()
		}
		recs, err := store.Query(id, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		type out struct {
			Date            string  `json:"date"`
			Sessions        int     `json:"sessions"`
			EnergyKWh       float64 `json:"energy_kwh"`
			AvgEnergyKWh    float64 `json:"avg_energy_kwh"`
			AvgDurationSecs float64 `json:"avg_duration_seconds"`
		}
		outSlice := make([]out, len(recs))
		for i, r := range recs {
			outSlice[i] = out{
				Date:            r.Date.Format("2006-01-02"),
				Sessions:        r.Sessions,
				EnergyKWh:       r.EnergyKWh,
				AvgEnergyKWh:    r.AvgEnergyKWh(),
				AvgDurationSecs: r.AvgDuration().Seconds(),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(outSlice)
	})
}
