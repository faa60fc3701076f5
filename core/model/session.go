package model

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

// ChargingSession records an active or completed charging event.
type ChargingSession struct {
	ID                ids.SessionID         `json:"id"`
	OperatorID        ids.OperatorID        `json:"operator_id"`
	PoolID            ids.ChargingPoolID    `json:"pool_id,omitempty"`
	StationID         ids.ChargingStationID `json:"station_id,omitempty"`
	EVSEID            ids.EVSEID            `json:"evse_id,omitempty"`
	ReservationID     ids.ReservationID     `json:"reservation_id,omitempty"`
	ProviderID        ids.ProviderID        `json:"provider_id,omitempty"`
	RoamingProviderID ids.RoamingProviderID `json:"roaming_provider_id,omitempty"`
	AuthToken         ids.AuthToken         `json:"auth_token,omitempty"`
	AccountID         ids.AccountID         `json:"account_id,omitempty"`
	ProductID         ids.ProductID         `json:"product_id,omitempty"`
	StartTime         time.Time             `json:"start_time"`
	StopTime          time.Time             `json:"stop_time,omitempty"`
	MeterStartKWh     float64               `json:"meter_start_kwh"`
}

// IsActive reports whether the session has not been stopped yet.
func (s ChargingSession) IsActive() bool { return s.StopTime.IsZero() }
