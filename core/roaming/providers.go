package roaming

import (
	"context"
	"fmt"
	"slices"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
)

// ProviderLifecycle exposes the vetoable addition and removal of local
// providers.
func (n *RoamingNetwork) ProviderLifecycle() *notify.Lifecycle[*EVServiceProvider] {
	return n.providers.life
}

// RoamingProviderLifecycle exposes the vetoable addition and removal of
// roaming provider adapters.
func (n *RoamingNetwork) RoamingProviderLifecycle() *notify.Lifecycle[RoamingProvider] {
	return n.roaming.life
}

// CreateNewEVServiceProvider registers a local e-mobility provider.
func (n *RoamingNetwork) CreateNewEVServiceProvider(ctx context.Context, id ids.ProviderID, cfg ...ProviderConfigurator) (*EVServiceProvider, error) {
	if id == "" {
		return nil, ids.ErrEmptyID
	}
	p := NewEVServiceProvider(id, cfg...)
	if err := n.providers.add(ctx, id, p); err != nil {
		return nil, err
	}
	n.providers.added(ctx, p)
	n.env.publish(events.EntityAdded{Kind: model.KindProvider, ID: string(id), ParentID: n.id})
	return p, nil
}

// RemoveEVServiceProvider removes a local provider unless a veto rejects it.
func (n *RoamingNetwork) RemoveEVServiceProvider(ctx context.Context, id ids.ProviderID) error {
	if _, err := n.providers.remove(ctx, id); err != nil {
		return err
	}
	n.env.publish(events.EntityRemoved{Kind: model.KindProvider, ID: string(id), ParentID: n.id})
	return nil
}

// TryGetEVServiceProvider returns the local provider with the given id.
func (n *RoamingNetwork) TryGetEVServiceProvider(id ids.ProviderID) (*EVServiceProvider, bool) {
	return n.providers.get(id)
}

// EVServiceProviders lists the local providers ordered by id.
func (n *RoamingNetwork) EVServiceProviders() []*EVServiceProvider { return n.providers.sorted() }

// RegisterRoamingProvider adds a roaming hub adapter.
func (n *RoamingNetwork) RegisterRoamingProvider(ctx context.Context, rp RoamingProvider) error {
	if rp == nil || rp.ID() == "" {
		return ids.ErrEmptyID
	}
	id := ids.RoamingProviderID(rp.ID())
	if err := n.roaming.add(ctx, id, rp); err != nil {
		return err
	}
	n.roaming.added(ctx, rp)
	n.env.publish(events.EntityAdded{Kind: model.KindRoamingProvider, ID: string(id), ParentID: n.id})
	return nil
}

// RemoveRoamingProvider removes an adapter unless a veto rejects it.
func (n *RoamingNetwork) RemoveRoamingProvider(ctx context.Context, id ids.RoamingProviderID) error {
	if _, err := n.roaming.remove(ctx, id); err != nil {
		return fmt.Errorf("remove roaming provider: %w", err)
	}
	n.env.publish(events.EntityRemoved{Kind: model.KindRoamingProvider, ID: string(id), ParentID: n.id})
	return nil
}

// RoamingProviders lists the adapters by priority, ties by id.
func (n *RoamingNetwork) RoamingProviders() []RoamingProvider {
	list := n.roaming.sorted()
	backends := make([]authorization.Backend, len(list))
	for i, rp := range list {
		backends[i] = rp
	}
	sorted := authorization.SortBackends(backends)
	out := make([]RoamingProvider, len(sorted))
	for i, b := range sorted {
		out[i] = b.(RoamingProvider)
	}
	return out
}

func (n *RoamingNetwork) cpoAdapters() []RoamingProvider {
	return slices.DeleteFunc(n.RoamingProviders(), func(rp RoamingProvider) bool { return rp.Role() != RoleCPO })
}

// LocalBackends lists the local providers for the authorization dispatcher.
func (n *RoamingNetwork) LocalBackends() []authorization.Backend {
	list := n.providers.sorted()
	out := make([]authorization.Backend, len(list))
	for i, p := range list {
		out[i] = p
	}
	return out
}

// RoamingBackends lists the CPO side adapters for the authorization
// dispatcher. EMP adapters only send commands and never authorize tokens or
// accept records.
func (n *RoamingNetwork) RoamingBackends() []authorization.Backend {
	list := n.cpoAdapters()
	out := make([]authorization.Backend, len(list))
	for i, rp := range list {
		out[i] = rp
	}
	return out
}
