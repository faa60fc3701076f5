package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/roaming/core/logger"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// SimulatedEVSE publishes status updates for one EVSE on the status feed.
type SimulatedEVSE struct {
	ID           string
	Broker       string
	StatusPrefix string
	Interval     time.Duration
	Availability [24]float64
	OfflineRate  float64
	AdminStatus  string
	Metrics      coremetrics.StatusRecorder
	Log          logger.Logger

	client paho.Client
	last   string
	now    func() time.Time
}

type statusMessage struct {
	EVSEID      string `json:"evse_id"`
	Status      string `json:"status,omitempty"`
	AdminStatus string `json:"admin_status,omitempty"`
	TS          int64  `json:"ts"`
}

func (e *SimulatedEVSE) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *SimulatedEVSE) topic() string {
	return strings.TrimSuffix(e.StatusPrefix, "/") + "/" + e.ID
}

// Run connects to the broker and publishes a status every Interval until ctx
// is done.
func (e *SimulatedEVSE) Run(ctx context.Context) error {
	cli, err := mqttClientFactory(e.Broker, "sim-"+e.ID)
	if err != nil {
		return err
	}
	e.client = cli
	defer cli.Disconnect(250)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	e.handleTick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.handleTick()
		}
	}
}

// nextStatus draws the status for the current hour. A charging EVSE is one
// that is not available according to the profile.
func (e *SimulatedEVSE) nextStatus(t time.Time) string {
	if e.OfflineRate > 0 && rng.Float64() < e.OfflineRate {
		return "offline"
	}
	if rng.Float64() < e.Availability[t.Hour()] {
		return "available"
	}
	return "charging"
}

// handleTick publishes the drawn status. Unchanged statuses are not resent.
func (e *SimulatedEVSE) handleTick() {
	now := e.clock()
	st := e.nextStatus(now)
	if st == e.last {
		return
	}
	msg := statusMessage{EVSEID: e.ID, Status: st, TS: now.Unix()}
	if e.last == "" {
		msg.AdminStatus = e.AdminStatus
	}
	if err := e.publish(msg); err != nil {
		logger.OrNop(e.Log).Warnf("%s: %v", e.ID, err)
		return
	}
	e.last = st
	if e.Metrics != nil {
		_ = e.Metrics.RecordStatus(coremetrics.StatusEvent{Kind: "evse", ID: e.ID, Status: st, Time: now})
	}
}

func (e *SimulatedEVSE) publish(msg statusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	token := e.client.Publish(e.topic(), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("status publish timeout")
	}
	return token.Error()
}
