package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	coremqtt "github.com/kilianp07/roaming/core/mqtt"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/core/roaming"
)

// HubConfig describes one roaming hub reached over MQTT.
type HubConfig struct {
	ID          string `json:"id"`
	Priority    int    `json:"priority"`
	Role        string `json:"role"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	TimeoutMS   int    `json:"timeout_ms"`
}

// SetDefaults fills the topic prefix and the response timeout.
func (c *HubConfig) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "roaming/hub"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks the hub identity and role.
func (c HubConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("hub id is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("hub %s: invalid qos %d", c.ID, c.QoS)
	}
	if _, err := roaming.ParseRole(c.Role); err != nil {
		return fmt.Errorf("hub %s: %w", c.ID, err)
	}
	return nil
}

// CommandHandler executes the reservations and remote sessions a hub sends
// to an EMP side adapter. *roaming.RoamingNetwork satisfies it.
type CommandHandler interface {
	Reserve(ctx context.Context, req coordinator.ReserveRequest) (result.Reservation, error)
	CancelReservation(ctx context.Context, req coordinator.CancelReservationRequest) (result.CancelReservation, error)
	RemoteStart(ctx context.Context, req coordinator.RemoteStartRequest) (result.RemoteStart, error)
	RemoteStop(ctx context.Context, req coordinator.RemoteStopRequest) (result.RemoteStop, error)
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithCommandHandler sets the handler of inbound commands.
func WithCommandHandler(h CommandHandler) HubOption { return func(a *Hub) { a.handler = h } }

// WithHubLogger overrides the logger.
func WithHubLogger(l logger.Logger) HubOption { return func(a *Hub) { a.log = logger.OrNop(l) } }

// Hub is a roaming provider adapter speaking to a hub over MQTT. CPO side
// hubs publish infrastructure changes and forward authorizations and charge
// detail records. EMP side hubs also execute the hub's commands.
type Hub struct {
	cfg     HubConfig
	role    roaming.Role
	cli     coremqtt.Client
	handler CommandHandler
	log     logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]chan Message
}

var _ roaming.RoamingProvider = (*Hub)(nil)

// NewHub validates cfg and returns an adapter. Call Start to subscribe.
func NewHub(cfg HubConfig, cli coremqtt.Client, opts ...HubOption) (*Hub, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cli == nil {
		return nil, coremqtt.ErrNotConnected
	}
	role, _ := roaming.ParseRole(cfg.Role)
	h := &Hub{
		cfg:     cfg,
		role:    role,
		cli:     cli,
		log:     logger.NopLogger{},
		now:     time.Now,
		pending: make(map[string]chan Message),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

func (h *Hub) topic(suffix string) string {
	return strings.TrimSuffix(h.cfg.TopicPrefix, "/") + "/" + h.cfg.ID + "/" + suffix
}

// ResponseTopic is where the hub answers outbound requests.
func (h *Hub) ResponseTopic() string { return h.topic("response") }

// RequestTopic is where outbound requests are published.
func (h *Hub) RequestTopic() string { return h.topic("request") }

// CommandTopic is where the hub sends commands to an EMP side adapter.
func (h *Hub) CommandTopic() string { return h.topic("command") }

// ReplyTopic is where command results are published.
func (h *Hub) ReplyTopic() string { return h.topic("reply") }

// Start subscribes to the response topic and, for EMP side hubs with a
// handler, to the command topic.
func (h *Hub) Start() error {
	if err := h.cli.Subscribe(h.ResponseTopic(), h.cfg.QoS, h.onResponse); err != nil {
		return err
	}
	if h.role == roaming.RoleEMP && h.handler != nil {
		if err := h.cli.Subscribe(h.CommandTopic(), h.cfg.QoS, h.onCommand); err != nil {
			return err
		}
	}
	h.log.Infof("roaming hub %s started as %s", h.cfg.ID, h.role)
	return nil
}

// Close drops the subscriptions and fails pending requests.
func (h *Hub) Close() error {
	err := h.cli.Unsubscribe(h.ResponseTopic(), h.CommandTopic())
	h.mu.Lock()
	for id, ch := range h.pending {
		close(ch)
		delete(h.pending, id)
	}
	h.mu.Unlock()
	return err
}

func (h *Hub) ID() string { return h.cfg.ID }

func (h *Hub) Priority() int { return h.cfg.Priority }

func (h *Hub) Role() roaming.Role { return h.role }

func (h *Hub) id() ids.RoamingProviderID { return ids.RoamingProviderID(h.cfg.ID) }

func (h *Hub) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return time.Duration(h.cfg.TimeoutMS) * time.Millisecond
}

// request publishes an envelope and waits for the matching response.
func (h *Hub) request(ctx context.Context, op events.Operation, payload any, timeout time.Duration) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	corr := uuid.NewString()
	ch := make(chan Message, 1)
	h.mu.Lock()
	h.pending[corr] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, corr)
		h.mu.Unlock()
	}()

	data, err := json.Marshal(Message{CorrelationID: corr, Operation: string(op), Payload: body, Timestamp: h.now().UnixMilli()})
	if err != nil {
		return Message{}, err
	}
	if err := h.cli.Publish(ctx, h.RequestTopic(), h.cfg.QoS, false, data); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m, ok := <-ch:
		if !ok {
			return Message{}, fmt.Errorf("hub %s closed", h.cfg.ID)
		}
		if m.Error != "" {
			return m, errors.New(m.Error)
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-timer.C:
		return Message{}, coremqtt.ErrResponseTimeout
	}
}

func (h *Hub) onResponse(_ string, payload []byte) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		h.log.Warnf("hub %s: undecodable response: %v", h.cfg.ID, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.pending[m.CorrelationID]
	if !ok {
		h.log.Debugf("hub %s: response %s matches no pending request", h.cfg.ID, m.CorrelationID)
		return
	}
	select {
	case ch <- m:
	default:
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, coremqtt.ErrResponseTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// AuthorizeStart forwards a start authorization to the hub.
func (h *Hub) AuthorizeStart(ctx context.Context, req authorization.StartRequest) (result.AuthStart, error) {
	m, err := h.request(ctx, events.OpAuthorizeStart, req, h.timeout(req.Timeout))
	if err != nil {
		t := result.AuthError
		if isTimeout(err) {
			t = result.AuthTimeout
		}
		res := result.AuthStartFailed(t, "", err.Error())
		res.RoamingProviderID = h.id()
		return res, nil
	}
	var res result.AuthStart
	if err := json.Unmarshal(m.Payload, &res); err != nil {
		return result.AuthStart{}, fmt.Errorf("decode authorize start response: %w", err)
	}
	res.RoamingProviderID = h.id()
	return res, nil
}

// AuthorizeStop forwards a stop authorization to the hub.
func (h *Hub) AuthorizeStop(ctx context.Context, req authorization.StopRequest) (result.AuthStop, error) {
	m, err := h.request(ctx, events.OpAuthorizeStop, req, h.timeout(req.Timeout))
	if err != nil {
		t := result.AuthError
		if isTimeout(err) {
			t = result.AuthTimeout
		}
		res := result.AuthStopFailed(t, req.SessionID, "", err.Error())
		res.RoamingProviderID = h.id()
		return res, nil
	}
	var res result.AuthStop
	if err := json.Unmarshal(m.Payload, &res); err != nil {
		return result.AuthStop{}, fmt.Errorf("decode authorize stop response: %w", err)
	}
	if res.SessionID.IsEmpty() {
		res.SessionID = req.SessionID
	}
	res.RoamingProviderID = h.id()
	return res, nil
}

// SendChargeDetailRecord forwards a record to the hub.
func (h *Hub) SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	m, err := h.request(ctx, events.OpSendCDR, cdr, h.timeout(0))
	if err != nil {
		return result.CDRResult(result.CDRError, cdr.SessionID, h.cfg.ID, err.Error()), nil
	}
	var res result.SendCDR
	if err := json.Unmarshal(m.Payload, &res); err != nil {
		return result.SendCDR{}, fmt.Errorf("decode cdr response: %w", err)
	}
	if res.SessionID.IsEmpty() {
		res.SessionID = cdr.SessionID
	}
	res.Backend = h.cfg.ID
	return res, nil
}

// EnqueueDataChange publishes a data change on the hub's data topic.
func (h *Hub) EnqueueDataChange(ctx context.Context, ev events.DataChanged) error {
	return h.publishJSON(ctx, h.topic("data"), ev)
}

// EnqueueStatusChange publishes a status change on the hub's status topic.
func (h *Hub) EnqueueStatusChange(ctx context.Context, ev events.StatusChanged) error {
	return h.publishJSON(ctx, h.topic("status"), ev)
}

func (h *Hub) publishJSON(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.cli.Publish(ctx, topic, h.cfg.QoS, false, data)
}

// onCommand runs inbound commands off the client's delivery goroutine.
func (h *Hub) onCommand(_ string, payload []byte) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		h.log.Warnf("hub %s: undecodable command: %v", h.cfg.ID, err)
		return
	}
	go h.execute(m)
}

func (h *Hub) execute(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout(0))
	defer cancel()

	res, err := h.dispatch(ctx, m)
	reply := Message{CorrelationID: m.CorrelationID, Operation: m.Operation, Timestamp: h.now().UnixMilli()}
	if err != nil {
		reply.Error = err.Error()
	} else if reply.Payload, err = json.Marshal(res); err != nil {
		reply.Error = err.Error()
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.log.Errorf("hub %s: encode reply: %v", h.cfg.ID, err)
		return
	}
	if err := h.cli.Publish(ctx, h.ReplyTopic(), h.cfg.QoS, false, data); err != nil {
		h.log.Errorw("hub reply failed", map[string]any{
			"hub":            h.cfg.ID,
			"correlation_id": m.CorrelationID,
			"error":          err.Error(),
		})
	}
}

func (h *Hub) dispatch(ctx context.Context, m Message) (any, error) {
	switch events.Operation(m.Operation) {
	case events.OpReserve:
		var req coordinator.ReserveRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			return nil, err
		}
		if req.ProviderID == "" {
			req.ProviderID = ids.ProviderID(h.cfg.ID)
		}
		return h.handler.Reserve(ctx, req)
	case events.OpCancelReservation:
		var req coordinator.CancelReservationRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			return nil, err
		}
		return h.handler.CancelReservation(ctx, req)
	case events.OpRemoteStart:
		var req coordinator.RemoteStartRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			return nil, err
		}
		if req.ProviderID == "" {
			req.ProviderID = ids.ProviderID(h.cfg.ID)
		}
		return h.handler.RemoteStart(ctx, req)
	case events.OpRemoteStop:
		var req coordinator.RemoteStopRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			return nil, err
		}
		return h.handler.RemoteStop(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported operation %q", m.Operation)
	}
}
