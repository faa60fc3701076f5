package roaming

import (
	"context"
	"sync"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

// EVServiceProvider is a local e-mobility provider. It authorizes its own
// customers' tokens and accepts the charge detail records of the sessions
// it started.
type EVServiceProvider struct {
	id       ids.ProviderID
	name     string
	priority int

	mu       sync.RWMutex
	allowed  map[ids.AuthToken]struct{}
	blocked  map[ids.AuthToken]struct{}
	sessions map[ids.SessionID]ids.AuthToken
	records  int
}

// ProviderConfigurator adjusts a new provider.
type ProviderConfigurator func(*EVServiceProvider)

// WithProviderName sets the display name.
func WithProviderName(n string) ProviderConfigurator { return func(p *EVServiceProvider) { p.name = n } }

// WithProviderPriority sets the position among local providers, lowest first.
func WithProviderPriority(n int) ProviderConfigurator {
	return func(p *EVServiceProvider) { p.priority = n }
}

// WithAllowedTokens authorizes tokens.
func WithAllowedTokens(tokens ...ids.AuthToken) ProviderConfigurator {
	return func(p *EVServiceProvider) {
		for _, t := range tokens {
			p.allowed[t] = struct{}{}
		}
	}
}

// WithBlockedTokens blocks tokens.
func WithBlockedTokens(tokens ...ids.AuthToken) ProviderConfigurator {
	return func(p *EVServiceProvider) {
		for _, t := range tokens {
			p.blocked[t] = struct{}{}
		}
	}
}

// NewEVServiceProvider returns a provider without any known token.
func NewEVServiceProvider(id ids.ProviderID, cfg ...ProviderConfigurator) *EVServiceProvider {
	p := &EVServiceProvider{
		id:       id,
		allowed:  make(map[ids.AuthToken]struct{}),
		blocked:  make(map[ids.AuthToken]struct{}),
		sessions: make(map[ids.SessionID]ids.AuthToken),
	}
	for _, c := range cfg {
		c(p)
	}
	return p
}

var _ authorization.Backend = (*EVServiceProvider)(nil)

func (p *EVServiceProvider) ID() string { return string(p.id) }

// ProviderID returns the typed identifier.
func (p *EVServiceProvider) ProviderID() ids.ProviderID { return p.id }

func (p *EVServiceProvider) Name() string { return p.name }

func (p *EVServiceProvider) Priority() int { return p.priority }

// AllowToken authorizes a token and lifts a block on it.
func (p *EVServiceProvider) AllowToken(t ids.AuthToken) {
	p.mu.Lock()
	p.allowed[t] = struct{}{}
	delete(p.blocked, t)
	p.mu.Unlock()
}

// BlockToken blocks a token.
func (p *EVServiceProvider) BlockToken(t ids.AuthToken) {
	p.mu.Lock()
	p.blocked[t] = struct{}{}
	delete(p.allowed, t)
	p.mu.Unlock()
}

// TrackSession records a session started for one of the provider's
// customers outside the authorization path.
func (p *EVServiceProvider) TrackSession(id ids.SessionID, t ids.AuthToken) {
	p.mu.Lock()
	p.sessions[id] = t
	p.mu.Unlock()
}

// KnowsSession reports whether the provider tracks the session.
func (p *EVServiceProvider) KnowsSession(id ids.SessionID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sessions[id]
	return ok
}

// RecordsReceived returns the number of accepted charge detail records.
func (p *EVServiceProvider) RecordsReceived() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.records
}

func (p *EVServiceProvider) AuthorizeStart(_ context.Context, req authorization.StartRequest) (result.AuthStart, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.blocked[req.AuthToken]; ok {
		return result.AuthStartFailed(result.AuthBlocked, p.id, "token blocked"), nil
	}
	if _, ok := p.allowed[req.AuthToken]; !ok {
		return result.AuthStartFailed(result.AuthNotAuthorized, p.id, "unknown token"), nil
	}
	sid := req.SessionID
	if sid.IsEmpty() {
		sid = ids.NewSessionID()
	}
	p.sessions[sid] = req.AuthToken
	return result.Authorized(sid, p.id), nil
}

func (p *EVServiceProvider) AuthorizeStop(_ context.Context, req authorization.StopRequest) (result.AuthStop, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	owner, known := p.sessions[req.SessionID]
	if !known {
		return result.AuthStopFailed(result.AuthInvalidSessionID, req.SessionID, p.id, "unknown session"), nil
	}
	if _, ok := p.blocked[req.AuthToken]; ok {
		return result.AuthStopFailed(result.AuthBlocked, req.SessionID, p.id, "token blocked"), nil
	}
	if _, ok := p.allowed[req.AuthToken]; ok || owner == req.AuthToken {
		return result.StopAuthorized(req.SessionID, p.id), nil
	}
	return result.AuthStopFailed(result.AuthNotAuthorized, req.SessionID, p.id, "token did not start the session"), nil
}

func (p *EVServiceProvider) SendChargeDetailRecord(_ context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[cdr.SessionID]; !ok {
		return result.CDRResult(result.CDRInvalidSessionID, cdr.SessionID, string(p.id), "unknown session"), nil
	}
	delete(p.sessions, cdr.SessionID)
	p.records++
	return result.CDRResult(result.CDRForwarded, cdr.SessionID, string(p.id), ""), nil
}
