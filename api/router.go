// Package api assembles the HTTP surface of the roaming service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	journalapi "github.com/kilianp07/roaming/api/journal"
	"github.com/kilianp07/roaming/api/operations"
	"github.com/kilianp07/roaming/api/status"
	"github.com/kilianp07/roaming/core/journal"
	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/roaming"
)

// Deps are the components served by the router. Journal, KPI and Gatherer
// are optional; their routes are omitted when nil.
type Deps struct {
	Network      *roaming.RoamingNetwork
	Journal      journal.Store
	JournalToken string
	KPI          kpi.Store
	Gatherer     prometheus.Gatherer
	MetricsPath  string
	Logger       logger.Logger
}

// NewRouter returns the HTTP handler of the service.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		operations.NewHandler(d.Network, d.Logger).Routes(r)
		r.Method(http.MethodGet, "/status", status.NewTreeHandler(d.Network))
		if d.KPI != nil {
			r.Method(http.MethodGet, "/operators/{id}/kpis", status.NewKPIHandler(d.KPI))
		}
		if d.Journal != nil {
			r.Method(http.MethodGet, "/journal", journalapi.NewHandler(d.Journal, d.JournalToken))
		}
	})
	if d.Gatherer != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
