package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
	hubmqtt "github.com/kilianp07/roaming/infra/mqtt"
)

type stubToken struct{ err error }

func (t *stubToken) Wait() bool                     { return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return true }
func (t *stubToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *stubToken) Error() error                   { return t.err }

type publication struct {
	topic   string
	payload []byte
}

type stubClient struct {
	mu           sync.Mutex
	subs         []string
	pubs         []publication
	disconnected int
}

func (c *stubClient) IsConnected() bool      { return c.disconnected == 0 }
func (c *stubClient) IsConnectionOpen() bool { return c.disconnected == 0 }
func (c *stubClient) Connect() paho.Token    { return &stubToken{} }
func (c *stubClient) Disconnect(uint)        { c.mu.Lock(); c.disconnected++; c.mu.Unlock() }
func (c *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.pubs = append(c.pubs, publication{topic: topic, payload: payload.([]byte)})
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.subs = append(c.subs, topic)
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &stubToken{}
}
func (c *stubClient) Unsubscribe(...string) paho.Token        { return &stubToken{} }
func (c *stubClient) AddRoute(string, paho.MessageHandler)    {}
func (c *stubClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (c *stubClient) published() []publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publication(nil), c.pubs...)
}

type statusRecorder struct{ events []coremetrics.StatusEvent }

func (r *statusRecorder) RecordStatus(ev coremetrics.StatusEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func TestEVSEPublishesStatusChanges(t *testing.T) {
	rng = rand.New(rand.NewSource(1))
	sc := &stubClient{}
	rec := &statusRecorder{}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e := &SimulatedEVSE{
		ID:           "DE*SIM*E0001",
		StatusPrefix: "roaming/status/",
		Availability: FlatProfile(1),
		AdminStatus:  "operational",
		Metrics:      rec,
		client:       sc,
		now:          func() time.Time { return now },
	}
	e.handleTick()
	e.handleTick()

	pubs := sc.published()
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publication got %d", len(pubs))
	}
	if pubs[0].topic != "roaming/status/DE*SIM*E0001" {
		t.Fatalf("unexpected topic %s", pubs[0].topic)
	}
	var msg statusMessage
	if err := json.Unmarshal(pubs[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != "available" || msg.AdminStatus != "operational" || msg.TS != now.Unix() {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(rec.events) != 1 || rec.events[0].Status != "available" {
		t.Fatalf("unexpected recorded events %+v", rec.events)
	}

	e.OfflineRate = 1
	e.handleTick()
	pubs = sc.published()
	if len(pubs) != 2 {
		t.Fatalf("expected 2 publications got %d", len(pubs))
	}
	if err := json.Unmarshal(pubs[1].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != "offline" || msg.AdminStatus != "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestEVSERunUsesFactory(t *testing.T) {
	sc := &stubClient{}
	mqttClientFactory = func(b, c string) (paho.Client, error) { return sc, nil }
	defer func() { mqttClientFactory = realMQTTClient }()

	e := &SimulatedEVSE{ID: "DE*SIM*E0001", StatusPrefix: "roaming/status", Interval: time.Hour, Availability: FlatProfile(0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(sc.published()) != 1 {
		t.Fatalf("expected initial status publication")
	}
	if sc.disconnected != 1 {
		t.Fatalf("expected disconnect")
	}
}

func request(t *testing.T, op events.Operation, payload any) hubmqtt.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return hubmqtt.Message{CorrelationID: "c-1", Operation: string(op), Payload: data}
}

func TestAutoAnswer(t *testing.T) {
	a := AutoAnswer{ProviderID: "SIM-EMP", Blocked: map[ids.AuthToken]bool{"bad": true}}

	resp, ok := a.Answer(context.Background(), request(t, events.OpAuthorizeStart, authorization.StartRequest{AuthToken: "good", SessionID: "S-1"}))
	if !ok || resp.CorrelationID != "c-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	var start result.AuthStart
	if err := json.Unmarshal(resp.Payload, &start); err != nil {
		t.Fatal(err)
	}
	if start.Type != result.AuthAuthorized || start.ProviderID != "SIM-EMP" || start.SessionID != "S-1" {
		t.Fatalf("unexpected result %+v", start)
	}

	resp, _ = a.Answer(context.Background(), request(t, events.OpAuthorizeStart, authorization.StartRequest{AuthToken: "bad"}))
	if err := json.Unmarshal(resp.Payload, &start); err != nil {
		t.Fatal(err)
	}
	if start.Type != result.AuthBlocked {
		t.Fatalf("expected blocked got %s", start.Type)
	}

	resp, _ = a.Answer(context.Background(), request(t, events.OpSendCDR, model.ChargeDetailRecord{SessionID: "S-1"}))
	var cdr result.SendCDR
	if err := json.Unmarshal(resp.Payload, &cdr); err != nil {
		t.Fatal(err)
	}
	if cdr.Type != result.CDRForwarded || cdr.SessionID != "S-1" {
		t.Fatalf("unexpected cdr result %+v", cdr)
	}

	resp, _ = a.Answer(context.Background(), hubmqtt.Message{CorrelationID: "c-2", Operation: "reboot"})
	if resp.Error == "" {
		t.Fatal("expected error for unsupported operation")
	}
}

func TestRandomAnswer(t *testing.T) {
	rng = rand.New(rand.NewSource(1))
	drop := RandomAnswer{DropRate: 1}
	if _, ok := drop.Answer(context.Background(), request(t, events.OpSendCDR, model.ChargeDetailRecord{})); ok {
		t.Fatal("expected request to be dropped")
	}

	reject := RandomAnswer{AutoAnswer: AutoAnswer{ProviderID: "SIM-EMP"}, RejectRate: 1}
	resp, ok := reject.Answer(context.Background(), request(t, events.OpAuthorizeStop, authorization.StopRequest{AuthToken: "tok", SessionID: "S-1"}))
	if !ok {
		t.Fatal("expected an answer")
	}
	var stop result.AuthStop
	if err := json.Unmarshal(resp.Payload, &stop); err != nil {
		t.Fatal(err)
	}
	if stop.Type != result.AuthNotAuthorized || stop.SessionID != "S-1" {
		t.Fatalf("unexpected result %+v", stop)
	}
}

func TestHubResponderRepliesOnResponseTopic(t *testing.T) {
	sc := &stubClient{}
	mqttClientFactory = func(b, c string) (paho.Client, error) { return sc, nil }
	defer func() { mqttClientFactory = realMQTTClient }()

	h := &HubResponder{HubID: "hubject", Prefix: "roaming/hub", Strategy: AutoAnswer{ProviderID: "SIM-EMP"}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sc.mu.Lock()
		n := len(sc.subs)
		sc.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("responder did not subscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sc.subs[0] != "roaming/hub/hubject/request" {
		t.Fatalf("unexpected subscription %s", sc.subs[0])
	}

	data, err := json.Marshal(request(t, events.OpSendCDR, model.ChargeDetailRecord{SessionID: "S-9"}))
	if err != nil {
		t.Fatal(err)
	}
	h.onRequest(sc, stubMessage{payload: data})

	for len(sc.published()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no response published")
		}
		time.Sleep(10 * time.Millisecond)
	}
	pub := sc.published()[0]
	if pub.topic != "roaming/hub/hubject/response" {
		t.Fatalf("unexpected topic %s", pub.topic)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

type stubMessage struct {
	paho.Message
	payload []byte
}

func (m stubMessage) Payload() []byte { return m.payload }
