// Package status exposes the infrastructure tree and operator KPIs over HTTP.
package status

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/roaming"
)

// EVSEView is the public state of one EVSE.
type EVSEView struct {
	ID            ids.EVSEID        `json:"id"`
	Description   string            `json:"description,omitempty"`
	MaxPowerKW    float64           `json:"max_power_kw,omitempty"`
	Status        model.Status      `json:"status"`
	AdminStatus   model.AdminStatus `json:"admin_status"`
	SessionID     ids.SessionID     `json:"session_id,omitempty"`
	ReservationID ids.ReservationID `json:"reservation_id,omitempty"`
}

// StationView is the public state of a charging station.
type StationView struct {
	ID           ids.ChargingStationID `json:"id"`
	Name         string                `json:"name,omitempty"`
	Address      string                `json:"address,omitempty"`
	Status       model.Status          `json:"status"`
	AdminStatus  model.AdminStatus     `json:"admin_status"`
	Reservations []ids.ReservationID   `json:"reservations,omitempty"`
	EVSEs        []EVSEView            `json:"evses"`
}

// PoolView is the public state of a charging pool.
type PoolView struct {
	ID           ids.ChargingPoolID  `json:"id"`
	Name         string              `json:"name,omitempty"`
	Address      string              `json:"address,omitempty"`
	Status       model.Status        `json:"status"`
	AdminStatus  model.AdminStatus   `json:"admin_status"`
	Reservations []ids.ReservationID `json:"reservations,omitempty"`
	Stations     []StationView       `json:"stations"`
}

// OperatorView is the public state of an EVSE operator.
type OperatorView struct {
	ID          ids.OperatorID    `json:"id"`
	Name        string            `json:"name,omitempty"`
	Status      model.Status      `json:"status"`
	AdminStatus model.AdminStatus `json:"admin_status"`
	Pools       []PoolView        `json:"pools"`
}

// NetworkView is the whole infrastructure tree.
type NetworkView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Reservations int            `json:"reservations"`
	Sessions     int            `json:"sessions"`
	Operators    []OperatorView `json:"operators"`
}

// Snapshot walks the network in id order.
func Snapshot(n *roaming.RoamingNetwork) NetworkView {
	v := NetworkView{
		ID:           n.ID(),
		Name:         n.Name(),
		Reservations: len(n.Reservations()),
		Sessions:     len(n.Sessions()),
		Operators:    []OperatorView{},
	}
	for _, o := range n.EVSEOperators() {
		ov := OperatorView{ID: o.ID(), Name: o.Name(), Status: o.Status(), AdminStatus: o.AdminStatus(), Pools: []PoolView{}}
		for _, p := range o.ChargingPools() {
			pv := PoolView{
				ID:           p.ID(),
				Name:         p.Name(),
				Address:      p.Address(),
				Status:       p.Status(),
				AdminStatus:  p.AdminStatus(),
				Reservations: reservationIDs(p.HeldReservations()),
				Stations:     []StationView{},
			}
			for _, s := range p.ChargingStations() {
				pv.Stations = append(pv.Stations, stationView(s))
			}
			ov.Pools = append(ov.Pools, pv)
		}
		v.Operators = append(v.Operators, ov)
	}
	return v
}

func stationView(s *roaming.ChargingStation) StationView {
	sv := StationView{
		ID:           s.ID(),
		Name:         s.Name(),
		Address:      s.Address(),
		Status:       s.Status(),
		AdminStatus:  s.AdminStatus(),
		Reservations: reservationIDs(s.HeldReservations()),
		EVSEs:        []EVSEView{},
	}
	for _, e := range s.EVSEs() {
		ev := EVSEView{
			ID:          e.ID(),
			Description: e.Description(),
			MaxPowerKW:  e.MaxPowerKW(),
			Status:      e.Status(),
			AdminStatus: e.AdminStatus(),
		}
		if sess, ok := e.Session(); ok {
			ev.SessionID = sess.ID
		}
		if r, ok := e.Reservation(); ok {
			ev.ReservationID = r.ID
		}
		sv.EVSEs = append(sv.EVSEs, ev)
	}
	return sv
}

func reservationIDs(rs []model.Reservation) []ids.ReservationID {
	if len(rs) == 0 {
		return nil
	}
	out := make([]ids.ReservationID, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// NewTreeHandler exposes the infrastructure tree via GET /api/status.
func NewTreeHandler(n *roaming.RoamingNetwork) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Snapshot(n)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
