// Package operations exposes the reservation, session, authorization and
// charge detail record operations of a roaming network over HTTP.
package operations

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

// Network is the part of a roaming network driven by the handlers.
type Network interface {
	Reserve(ctx context.Context, req coordinator.ReserveRequest) (result.Reservation, error)
	CancelReservation(ctx context.Context, req coordinator.CancelReservationRequest) (result.CancelReservation, error)
	RemoteStart(ctx context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error)
	RemoteStop(ctx context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error)
	AuthorizeStart(ctx context.Context, req authorization.StartRequest) (result.AuthStart, error)
	AuthorizeStop(ctx context.Context, req authorization.StopRequest) (result.AuthStop, error)
	SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error)
	Reservations() []model.Reservation
	Sessions() []model.ChargingSession
	ChargeDetailRecords() []model.ChargeDetailRecord
}

// Handler serves the operation routes.
type Handler struct {
	net Network
	log logger.Logger
}

// NewHandler returns a Handler driving net.
func NewHandler(net Network, log logger.Logger) *Handler {
	return &Handler{net: net, log: logger.OrNop(log)}
}

// Routes mounts the operation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reservations", h.listReservations)
	r.Post("/reservations", h.reserve)
	r.Delete("/reservations/{id}", h.cancelReservation)
	r.Get("/sessions", h.listSessions)
	r.Post("/sessions/start", h.remoteStart)
	r.Post("/sessions/{id}/stop", h.remoteStop)
	r.Post("/authorize/start", h.authorizeStart)
	r.Post("/authorize/stop", h.authorizeStop)
	r.Get("/cdrs", h.listCDRs)
	r.Post("/cdrs", h.sendCDR)
}

type reserveBody struct {
	Target          coordinator.Target  `json:"target"`
	ReservationID   ids.ReservationID   `json:"reservation_id,omitempty"`
	StartTime       time.Time           `json:"start_time,omitempty"`
	DurationSeconds int                 `json:"duration_seconds,omitempty"`
	ProviderID      ids.ProviderID      `json:"provider_id,omitempty"`
	AccountID       ids.AccountID       `json:"account_id,omitempty"`
	ProductID       ids.ProductID       `json:"product_id,omitempty"`
	AuthTokens      []ids.AuthToken     `json:"auth_tokens,omitempty"`
	PINs            []string            `json:"pins,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	TimeoutSeconds  int                 `json:"timeout_seconds,omitempty"`
}

type startBody struct {
	Target          coordinator.Target  `json:"target"`
	ProductID       ids.ProductID       `json:"product_id,omitempty"`
	ReservationID   ids.ReservationID   `json:"reservation_id,omitempty"`
	SessionID       ids.SessionID       `json:"session_id,omitempty"`
	ProviderID      ids.ProviderID      `json:"provider_id,omitempty"`
	AccountID       ids.AccountID       `json:"account_id,omitempty"`
	AuthToken       ids.AuthToken       `json:"auth_token,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	TimeoutSeconds  int                 `json:"timeout_seconds,omitempty"`
}

type stopBody struct {
	Target          coordinator.Target        `json:"target"`
	Handling        model.ReservationHandling `json:"reservation_handling"`
	ProviderID      ids.ProviderID            `json:"provider_id,omitempty"`
	AccountID       ids.AccountID             `json:"account_id,omitempty"`
	EventTrackingID ids.EventTrackingID       `json:"event_tracking_id,omitempty"`
	TimeoutSeconds  int                       `json:"timeout_seconds,omitempty"`
}

type authStartBody struct {
	AuthToken       ids.AuthToken       `json:"auth_token"`
	Target          coordinator.Target  `json:"target"`
	OperatorID      ids.OperatorID      `json:"operator_id,omitempty"`
	SessionID       ids.SessionID       `json:"session_id,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	TimeoutSeconds  int                 `json:"timeout_seconds,omitempty"`
}

type authStopBody struct {
	AuthToken       ids.AuthToken       `json:"auth_token"`
	SessionID       ids.SessionID       `json:"session_id"`
	Target          coordinator.Target  `json:"target"`
	OperatorID      ids.OperatorID      `json:"operator_id,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	TimeoutSeconds  int                 `json:"timeout_seconds,omitempty"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var b reserveBody
	if !h.decode(w, r, &b) {
		return
	}
	res, err := h.net.Reserve(r.Context(), coordinator.ReserveRequest{
		Target:          b.Target,
		ReservationID:   b.ReservationID,
		StartTime:       b.StartTime,
		Duration:        seconds(b.DurationSeconds),
		ProviderID:      b.ProviderID,
		AccountID:       b.AccountID,
		ProductID:       b.ProductID,
		AuthTokens:      b.AuthTokens,
		PINs:            b.PINs,
		EventTrackingID: b.EventTrackingID,
		Timeout:         seconds(b.TimeoutSeconds),
	})
	h.respond(w, res, err)
}

func (h *Handler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	var reason model.CancelReason
	if err := reason.UnmarshalText([]byte(r.URL.Query().Get("reason"))); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.net.CancelReservation(r.Context(), coordinator.CancelReservationRequest{
		ReservationID: ids.ReservationID(chi.URLParam(r, "id")),
		Reason:        reason,
	})
	h.respond(w, res, err)
}

func (h *Handler) remoteStart(w http.ResponseWriter, r *http.Request) {
	var b startBody
	if !h.decode(w, r, &b) {
		return
	}
	res, err := h.net.RemoteStart(r.Context(), coordinator.RemoteStartRequest{
		Target:          b.Target,
		ProductID:       b.ProductID,
		ReservationID:   b.ReservationID,
		SessionID:       b.SessionID,
		ProviderID:      b.ProviderID,
		AccountID:       b.AccountID,
		AuthToken:       b.AuthToken,
		EventTrackingID: b.EventTrackingID,
		Timeout:         seconds(b.TimeoutSeconds),
	})
	h.respond(w, res, err)
}

func (h *Handler) remoteStop(w http.ResponseWriter, r *http.Request) {
	var b stopBody
	if !h.decode(w, r, &b) {
		return
	}
	res, err := h.net.RemoteStop(r.Context(), coordinator.RemoteStopRequest{
		Target:          b.Target,
		SessionID:       ids.SessionID(chi.URLParam(r, "id")),
		Handling:        b.Handling,
		ProviderID:      b.ProviderID,
		AccountID:       b.AccountID,
		EventTrackingID: b.EventTrackingID,
		Timeout:         seconds(b.TimeoutSeconds),
	})
	h.respond(w, res, err)
}

func (h *Handler) authorizeStart(w http.ResponseWriter, r *http.Request) {
	var b authStartBody
	if !h.decode(w, r, &b) {
		return
	}
	res, err := h.net.AuthorizeStart(r.Context(), authorization.StartRequest{
		AuthToken:       b.AuthToken,
		Target:          b.Target,
		OperatorID:      b.OperatorID,
		SessionID:       b.SessionID,
		EventTrackingID: b.EventTrackingID,
		Timeout:         seconds(b.TimeoutSeconds),
	})
	h.respond(w, res, err)
}

func (h *Handler) authorizeStop(w http.ResponseWriter, r *http.Request) {
	var b authStopBody
	if !h.decode(w, r, &b) {
		return
	}
	res, err := h.net.AuthorizeStop(r.Context(), authorization.StopRequest{
		AuthToken:       b.AuthToken,
		SessionID:       b.SessionID,
		Target:          b.Target,
		OperatorID:      b.OperatorID,
		EventTrackingID: b.EventTrackingID,
		Timeout:         seconds(b.TimeoutSeconds),
	})
	h.respond(w, res, err)
}

func (h *Handler) sendCDR(w http.ResponseWriter, r *http.Request) {
	var cdr model.ChargeDetailRecord
	if !h.decode(w, r, &cdr) {
		return
	}
	res, err := h.net.SendChargeDetailRecord(r.Context(), cdr)
	h.respond(w, res, err)
}

func (h *Handler) listReservations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.net.Reservations())
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.net.Sessions())
}

func (h *Handler) listCDRs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.net.ChargeDetailRecords())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// respond writes the operation result. Errors are validation failures
// raised before any work was done.
func (h *Handler) respond(w http.ResponseWriter, res any, err error) {
	if err != nil {
		h.log.Warnf("rejected request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
