// Package statusfeed applies EVSE status updates received over MQTT to the
// roaming network.
package statusfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/roaming/config"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	coremqtt "github.com/kilianp07/roaming/core/mqtt"
	infralogger "github.com/kilianp07/roaming/infra/logger"
)

// StatusUpdater applies EVSE status changes. *roaming.RoamingNetwork
// satisfies it.
type StatusUpdater interface {
	UpdateEVSEStatus(id ids.EVSEID, st model.Status, ts time.Time) error
	UpdateEVSEAdminStatus(id ids.EVSEID, st model.AdminStatus, ts time.Time) error
}

// Manager collects EVSE statuses either pushed by the stations or answered
// to periodic polls.
type Manager struct {
	cfg    config.StatusFeedConfig
	cli    coremqtt.Client
	target StatusUpdater
	log    logger.Logger
	now    func() time.Time

	messages    *prometheus.CounterVec
	pollReq     prometheus.Counter
	lastCollect prometheus.Gauge
}

// NewManager prepares the feed and registers its metrics on reg.
func NewManager(cli coremqtt.Client, cfg config.StatusFeedConfig, target StatusUpdater, reg prometheus.Registerer) (*Manager, error) {
	if cli == nil {
		return nil, coremqtt.ErrNotConnected
	}
	if target == nil {
		return nil, fmt.Errorf("status feed requires a target")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Manager{
		cfg:    cfg,
		cli:    cli,
		target: target,
		log:    infralogger.New("statusfeed"),
		now:    time.Now,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "statusfeed_messages_total",
			Help: "EVSE status messages by outcome",
		}, []string{"outcome"}),
		pollReq:     prometheus.NewCounter(prometheus.CounterOpts{Name: "statusfeed_poll_requests_total", Help: "Number of status poll requests"}),
		lastCollect: prometheus.NewGauge(prometheus.GaugeOpts{Name: "statusfeed_last_update_timestamp_seconds", Help: "Unix timestamp of the last applied status"}),
	}
	var err error
	if m.messages, err = register(reg, m.messages); err != nil {
		return nil, err
	}
	if m.pollReq, err = register(reg, m.pollReq); err != nil {
		return nil, err
	}
	if m.lastCollect, err = register(reg, m.lastCollect); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the collector already registered under the same name, if
// any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Manager) topics() []string {
	var out []string
	if m.cfg.Mode == "push" || m.cfg.Mode == "hybrid" {
		out = append(out, strings.TrimSuffix(m.cfg.TopicPrefix, "/")+"/+")
	}
	if m.cfg.Mode == "pull" || m.cfg.Mode == "hybrid" {
		out = append(out, strings.TrimSuffix(m.cfg.ResponsePrefix, "/")+"/+")
	}
	return out
}

// Start runs status collection until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	topics := m.topics()
	for _, t := range topics {
		if err := m.cli.Subscribe(t, m.cfg.QoS, m.onMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	m.log.Infof("status feed started in %s mode", m.cfg.Mode)
	if m.cfg.Mode == "pull" || m.cfg.Mode == "hybrid" {
		go m.pollLoop(ctx)
	}
	<-ctx.Done()
	return m.cli.Unsubscribe(topics...)
}

func (m *Manager) onMessage(topic string, payload []byte) {
	if err := m.process(topic, payload); err != nil {
		m.messages.WithLabelValues("rejected").Inc()
		m.log.Warnw("status message rejected", map[string]any{"topic": topic, "error": err.Error()})
		return
	}
	m.messages.WithLabelValues("applied").Inc()
	m.lastCollect.SetToCurrentTime()
}

func extractID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return ""
}

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(m.cfg.Interval()) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	m.pollReq.Inc()
	if err := m.cli.Publish(ctx, m.cfg.PollTopic, m.cfg.QoS, false, []byte("poll")); err != nil {
		m.log.Errorf("status poll: %v", err)
	}
}

// message is the payload of a status push or poll answer. The EVSE id
// defaults to the last topic segment.
type message struct {
	EVSEID      string `json:"evse_id"`
	Status      string `json:"status"`
	AdminStatus string `json:"admin_status"`
	TS          *int64 `json:"ts"`
}

func (m *Manager) process(topic string, payload []byte) error {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.EVSEID == "" {
		msg.EVSEID = extractID(topic)
	}
	id, err := ids.ParseEVSEID(msg.EVSEID)
	if err != nil {
		return err
	}
	if msg.Status == "" && msg.AdminStatus == "" {
		return fmt.Errorf("evse %s: empty status message", id)
	}
	ts := m.now()
	if msg.TS != nil {
		ts = time.Unix(*msg.TS, 0)
	}
	if msg.AdminStatus != "" {
		if err := m.target.UpdateEVSEAdminStatus(id, model.AdminStatus(msg.AdminStatus), ts); err != nil {
			return err
		}
	}
	if msg.Status != "" {
		if err := m.target.UpdateEVSEStatus(id, model.Status(msg.Status), ts); err != nil {
			return err
		}
	}
	return nil
}
