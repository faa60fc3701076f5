package model

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

// ChargeDetailRecord is the billable summary of a completed session.
type ChargeDetailRecord struct {
	SessionID     ids.SessionID         `json:"session_id"`
	OperatorID    ids.OperatorID        `json:"operator_id"`
	StationID     ids.ChargingStationID `json:"station_id,omitempty"`
	EVSEID        ids.EVSEID            `json:"evse_id,omitempty"`
	ReservationID ids.ReservationID     `json:"reservation_id,omitempty"`
	ProviderID    ids.ProviderID        `json:"provider_id,omitempty"`
	AuthToken     ids.AuthToken         `json:"auth_token,omitempty"`
	ProductID     ids.ProductID         `json:"product_id,omitempty"`
	SessionStart  time.Time             `json:"session_start"`
	SessionEnd    time.Time             `json:"session_end"`
	MeterStartKWh float64               `json:"meter_start_kwh"`
	MeterStopKWh  float64               `json:"meter_stop_kwh"`
}

// EnergyKWh returns the metered energy, never negative.
func (c ChargeDetailRecord) EnergyKWh() float64 {
	if c.MeterStopKWh < c.MeterStartKWh {
		return 0
	}
	return c.MeterStopKWh - c.MeterStartKWh
}

// Duration returns the session length.
func (c ChargeDetailRecord) Duration() time.Duration {
	if c.SessionEnd.Before(c.SessionStart) {
		return 0
	}
	return c.SessionEnd.Sub(c.SessionStart)
}
