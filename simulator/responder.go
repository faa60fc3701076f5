package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/logger"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
	hubmqtt "github.com/kilianp07/roaming/infra/mqtt"
)

// AnswerStrategy decides how the simulated hub answers a request. A false
// return drops the request.
type AnswerStrategy interface {
	Answer(ctx context.Context, req hubmqtt.Message) (hubmqtt.Message, bool)
}

// AutoAnswer authorizes every token that is not blocked and accepts every
// charge detail record after an optional fixed delay.
type AutoAnswer struct {
	Delay      time.Duration
	ProviderID ids.ProviderID
	Blocked    map[ids.AuthToken]bool
}

// Answer implements AnswerStrategy.
func (a AutoAnswer) Answer(ctx context.Context, req hubmqtt.Message) (hubmqtt.Message, bool) {
	if !wait(ctx, a.Delay) {
		return hubmqtt.Message{}, false
	}
	return a.answer(req, false), true
}

func (a AutoAnswer) answer(req hubmqtt.Message, reject bool) hubmqtt.Message {
	resp := hubmqtt.Message{
		CorrelationID: req.CorrelationID,
		Operation:     req.Operation,
		Timestamp:     time.Now().UnixMilli(),
	}
	var payload any
	switch events.Operation(req.Operation) {
	case events.OpAuthorizeStart:
		var r authorization.StartRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			resp.Error = err.Error()
			return resp
		}
		switch {
		case a.Blocked[r.AuthToken]:
			payload = result.AuthStartFailed(result.AuthBlocked, a.ProviderID, "blocked")
		case reject:
			payload = result.AuthStartFailed(result.AuthNotAuthorized, a.ProviderID, "rejected")
		default:
			payload = result.Authorized(r.SessionID, a.ProviderID)
		}
	case events.OpAuthorizeStop:
		var r authorization.StopRequest
		if err := json.Unmarshal(req.Payload, &r); err != nil {
			resp.Error = err.Error()
			return resp
		}
		if reject || a.Blocked[r.AuthToken] {
			payload = result.AuthStopFailed(result.AuthNotAuthorized, r.SessionID, a.ProviderID, "rejected")
		} else {
			payload = result.StopAuthorized(r.SessionID, a.ProviderID)
		}
	case events.OpSendCDR:
		var cdr model.ChargeDetailRecord
		if err := json.Unmarshal(req.Payload, &cdr); err != nil {
			resp.Error = err.Error()
			return resp
		}
		t := result.CDRForwarded
		if reject {
			t = result.CDRNotForwarded
		}
		payload = result.CDRResult(t, cdr.SessionID, "", "")
	default:
		resp.Error = fmt.Sprintf("unsupported operation %q", req.Operation)
		return resp
	}
	data, err := json.Marshal(payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Payload = data
	return resp
}

// RandomAnswer drops requests with DropRate probability and rejects the
// remaining ones with RejectRate probability.
type RandomAnswer struct {
	AutoAnswer
	DropRate   float64
	RejectRate float64
}

// Answer implements AnswerStrategy.
func (r RandomAnswer) Answer(ctx context.Context, req hubmqtt.Message) (hubmqtt.Message, bool) {
	if r.DropRate > 0 && rng.Float64() < r.DropRate {
		return hubmqtt.Message{}, false
	}
	if !wait(ctx, r.Delay) {
		return hubmqtt.Message{}, false
	}
	reject := r.RejectRate > 0 && rng.Float64() < r.RejectRate
	return r.answer(req, reject), true
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// HubResponder plays the remote side of a roaming hub: it reads requests
// and answers them on the response topic.
type HubResponder struct {
	HubID    string
	Prefix   string
	Broker   string
	Strategy AnswerStrategy
	Log      logger.Logger

	client paho.Client
	reqCh  chan hubmqtt.Message
	wg     sync.WaitGroup
}

func (h *HubResponder) topic(suffix string) string {
	return strings.TrimSuffix(h.Prefix, "/") + "/" + h.HubID + "/" + suffix
}

// Run connects to the broker and answers requests until ctx is done.
func (h *HubResponder) Run(ctx context.Context) error {
	cli, err := mqttClientFactory(h.Broker, "sim-hub-"+h.HubID)
	if err != nil {
		return err
	}
	h.client = cli
	h.reqCh = make(chan hubmqtt.Message, 50)
	for i := 0; i < 5; i++ {
		h.wg.Add(1)
		go h.worker(ctx)
	}
	if token := cli.Subscribe(h.topic("request"), 1, h.onRequest); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	<-ctx.Done()
	cli.Disconnect(250)
	h.wg.Wait()
	return nil
}

func (h *HubResponder) onRequest(_ paho.Client, msg paho.Message) {
	var m hubmqtt.Message
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		logger.OrNop(h.Log).Warnf("decode request: %v", err)
		return
	}
	select {
	case h.reqCh <- m:
	default:
		logger.OrNop(h.Log).Warnf("request queue full, dropping %s", m.CorrelationID)
	}
}

func (h *HubResponder) worker(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case m := <-h.reqCh:
			if resp, ok := h.Strategy.Answer(ctx, m); ok {
				h.reply(resp)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *HubResponder) reply(resp hubmqtt.Message) {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.OrNop(h.Log).Errorf("marshal response: %v", err)
		return
	}
	token := h.client.Publish(h.topic("response"), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		logger.OrNop(h.Log).Warnf("response publish timeout for %s", resp.CorrelationID)
		return
	}
	if err := token.Error(); err != nil {
		logger.OrNop(h.Log).Errorf("publish response %s: %v", resp.CorrelationID, err)
	}
}
