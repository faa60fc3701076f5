package roaming

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/notify"
)

// EVSEOperator is a charge point operator. It routes requests to the pool
// owning the targeted entity.
type EVSEOperator struct {
	*coordinator.Coordinator
	*entityBase
	id      ids.OperatorID
	network *RoamingNetwork

	mu   sync.RWMutex
	name string

	pools *children[ids.ChargingPoolID, *ChargingPool]
}

// OperatorConfigurator adjusts a new operator before it is proposed.
type OperatorConfigurator func(*EVSEOperator)

// WithOperatorName sets the display name.
func WithOperatorName(n string) OperatorConfigurator { return func(o *EVSEOperator) { o.name = n } }

// WithOperatorAdminStatus sets the initial admin status.
func WithOperatorAdminStatus(st model.AdminStatus) OperatorConfigurator {
	return func(o *EVSEOperator) { o.resetAdminStatus(st) }
}

func newEVSEOperator(id ids.OperatorID, n *RoamingNetwork, e *env) *EVSEOperator {
	o := &EVSEOperator{
		entityBase: newEntityBase(model.KindOperator, string(id), e, model.StatusUnknown),
		id:         id,
		network:    n,
		pools:      newChildren[ids.ChargingPoolID, *ChargingPool]("charging pool", e.log),
	}
	o.Coordinator = coordinator.New(model.KindOperator.String(), string(id), o.resolve, o.owners, e.coordinatorOptions()...)
	return o
}

// ID returns the operator identifier.
func (o *EVSEOperator) ID() ids.OperatorID { return o.id }

// Network returns the owning network.
func (o *EVSEOperator) Network() *RoamingNetwork { return o.network }

func (o *EVSEOperator) Name() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.name
}

// SetName updates the name and notifies data subscribers.
func (o *EVSEOperator) SetName(ctx context.Context, n string) {
	o.mu.Lock()
	old := o.name
	o.name = n
	o.mu.Unlock()
	o.changeData(ctx, "name", old, n)
}

// PoolLifecycle exposes the vetoable addition and removal of pools.
func (o *EVSEOperator) PoolLifecycle() *notify.Lifecycle[*ChargingPool] { return o.pools.life }

// CreateNewChargingPool validates id, applies the configurators, proposes
// the pool to the lifecycle vetoes and commits it.
func (o *EVSEOperator) CreateNewChargingPool(ctx context.Context, id ids.ChargingPoolID, cfg ...PoolConfigurator) (*ChargingPool, error) {
	parsed, err := ids.ParseChargingPoolID(string(id))
	if err != nil {
		return nil, err
	}
	if op, _ := parsed.OperatorID(); op != o.id {
		return nil, fmt.Errorf("%w: charging pool %s in operator %s", ErrOperatorMismatch, parsed, o.id)
	}
	p := newChargingPool(parsed, o, o.env)
	for _, c := range cfg {
		c(p)
	}
	p.hookSchedules()
	if err := o.pools.add(ctx, parsed, p); err != nil {
		return nil, err
	}
	p.wireTo(string(o.id), o.forwardData, o.childStatusChanged)
	o.pools.added(ctx, p)
	o.env.publish(events.EntityAdded{Kind: model.KindChargingPool, ID: string(parsed), ParentID: string(o.id)})
	o.recomputeStatus()
	return p, nil
}

// RemoveChargingPool removes a pool unless a veto rejects it.
func (o *EVSEOperator) RemoveChargingPool(ctx context.Context, id ids.ChargingPoolID) (*ChargingPool, error) {
	p, err := o.pools.remove(ctx, id)
	if err != nil {
		return nil, err
	}
	p.unwireAll()
	o.env.publish(events.EntityRemoved{Kind: model.KindChargingPool, ID: string(id), ParentID: string(o.id)})
	o.recomputeStatus()
	return p, nil
}

// TryGetChargingPool returns the pool with the given id.
func (o *EVSEOperator) TryGetChargingPool(id ids.ChargingPoolID) (*ChargingPool, bool) {
	return o.pools.get(id)
}

// ChargingPools lists the pools ordered by id.
func (o *EVSEOperator) ChargingPools() []*ChargingPool { return o.pools.sorted() }

// AllChargingStations lists the stations of every pool.
func (o *EVSEOperator) AllChargingStations() []*ChargingStation {
	var out []*ChargingStation
	for _, p := range o.pools.sorted() {
		out = append(out, p.ChargingStations()...)
	}
	return out
}

// AllEVSEs lists the EVSEs of every pool.
func (o *EVSEOperator) AllEVSEs() []*EVSE {
	var out []*EVSE
	for _, p := range o.pools.sorted() {
		out = append(out, p.AllEVSEs()...)
	}
	return out
}

// TryGetChargingStation returns the station with the given id.
func (o *EVSEOperator) TryGetChargingStation(id ids.ChargingStationID) (*ChargingStation, bool) {
	if p, ok := o.poolOfStation(id); ok {
		return p.TryGetChargingStation(id)
	}
	return nil, false
}

// TryGetEVSE returns the EVSE with the given id.
func (o *EVSEOperator) TryGetEVSE(id ids.EVSEID) (*EVSE, bool) {
	if p, ok := o.poolOfEVSE(id); ok {
		return p.TryGetEVSE(id)
	}
	return nil, false
}

func (o *EVSEOperator) poolOfStation(id ids.ChargingStationID) (*ChargingPool, bool) {
	for _, p := range o.pools.sorted() {
		if p.stations.has(id) {
			return p, true
		}
	}
	return nil, false
}

func (o *EVSEOperator) poolOfEVSE(id ids.EVSEID) (*ChargingPool, bool) {
	for _, p := range o.pools.sorted() {
		if _, ok := p.stationOfEVSE(id); ok {
			return p, true
		}
	}
	return nil, false
}

func (o *EVSEOperator) resolve(t coordinator.Target) (coordinator.Node, coordinator.Miss) {
	var (
		p  *ChargingPool
		ok bool
	)
	switch t.Level {
	case model.LevelEVSE:
		p, ok = o.poolOfEVSE(ids.EVSEID(t.ID))
	case model.LevelChargingStation:
		p, ok = o.poolOfStation(ids.ChargingStationID(t.ID))
	case model.LevelChargingPool:
		p, ok = o.pools.get(ids.ChargingPoolID(t.ID))
	}
	if !ok {
		return nil, coordinator.MissEntity
	}
	return p, coordinator.Found
}

func (o *EVSEOperator) owners() []coordinator.Node {
	pools := o.pools.sorted()
	out := make([]coordinator.Node, len(pools))
	for i, p := range pools {
		out[i] = p
	}
	return out
}

func (o *EVSEOperator) contains(t coordinator.Target) bool {
	_, miss := o.resolve(t)
	return miss == coordinator.Found
}

func (o *EVSEOperator) childStatusChanged(ctx context.Context, ev events.StatusChanged) error {
	o.statusObs.Notify(ctx, opStatusChanged, ev)
	if ev.Kind == model.KindChargingPool && !ev.Admin {
		o.recomputeStatus()
	}
	return nil
}

func (o *EVSEOperator) recomputeStatus() {
	snapshot := make(map[string]model.Status, o.pools.len())
	for _, p := range o.pools.sorted() {
		snapshot[string(p.id)] = p.Status()
	}
	o.recompute(o.env.aggregators.Operator, snapshot)
}
