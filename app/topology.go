package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/roaming/config"
	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/roaming"
	"github.com/kilianp07/roaming/core/status"
)

// BuildNetwork creates the roaming network described by cfg: its
// infrastructure tree and local e-mobility providers. Roaming providers are
// attached by the Service since they need a transport.
func BuildNetwork(ctx context.Context, cfg *config.Config, opts ...roaming.NetworkOption) (*roaming.RoamingNetwork, error) {
	agg, err := status.AggregatorByName(cfg.Network.Aggregator)
	if err != nil {
		return nil, err
	}
	startPolicy, stopPolicy, err := cfg.Authorization.Policies()
	if err != nil {
		return nil, err
	}
	netOpts := append([]roaming.NetworkOption{
		roaming.WithMaxReservationDuration(cfg.Coordinator.MaxReservation()),
		roaming.WithStatusHistory(cfg.Network.StatusHistory),
		roaming.WithAggregators(roaming.Aggregators{Station: agg, Pool: agg, Operator: agg}),
	}, opts...)
	n := roaming.New(cfg.Network.ID, cfg.Network.Name, netOpts,
		authorization.WithStartPolicy(startPolicy),
		authorization.WithStopPolicy(stopPolicy),
	)

	for _, oc := range cfg.Network.Operators {
		if err := buildOperator(ctx, n, oc); err != nil {
			return nil, err
		}
	}
	for _, pc := range cfg.Providers {
		if _, err := n.CreateNewEVServiceProvider(ctx, ids.ProviderID(pc.ID),
			roaming.WithProviderName(pc.Name),
			roaming.WithProviderPriority(pc.Priority),
			roaming.WithAllowedTokens(tokens(pc.AllowedTokens)...),
			roaming.WithBlockedTokens(tokens(pc.BlockedTokens)...),
		); err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.ID, err)
		}
	}
	return n, nil
}

func buildOperator(ctx context.Context, n *roaming.RoamingNetwork, oc config.OperatorConfig) error {
	cfg := []roaming.OperatorConfigurator{roaming.WithOperatorName(oc.Name)}
	if oc.AdminStatus != "" {
		cfg = append(cfg, roaming.WithOperatorAdminStatus(model.AdminStatus(oc.AdminStatus)))
	}
	op, err := n.CreateNewEVSEOperator(ctx, ids.OperatorID(oc.ID), cfg...)
	if err != nil {
		return fmt.Errorf("operator %s: %w", oc.ID, err)
	}
	for _, pc := range oc.Pools {
		pcfg := []roaming.PoolConfigurator{roaming.WithPoolName(pc.Name), roaming.WithPoolAddress(pc.Address)}
		if pc.AdminStatus != "" {
			pcfg = append(pcfg, roaming.WithPoolAdminStatus(model.AdminStatus(pc.AdminStatus)))
		}
		pool, err := op.CreateNewChargingPool(ctx, ids.ChargingPoolID(pc.ID), pcfg...)
		if err != nil {
			return fmt.Errorf("pool %s: %w", pc.ID, err)
		}
		for _, sc := range pc.Stations {
			if err := buildStation(ctx, pool, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildStation(ctx context.Context, pool *roaming.ChargingPool, sc config.StationConfig) error {
	cfg := []roaming.StationConfigurator{roaming.WithStationName(sc.Name), roaming.WithStationAddress(sc.Address)}
	if sc.AdminStatus != "" {
		cfg = append(cfg, roaming.WithStationAdminStatus(model.AdminStatus(sc.AdminStatus)))
	}
	st, err := pool.CreateNewChargingStation(ctx, ids.ChargingStationID(sc.ID), cfg...)
	if err != nil {
		return fmt.Errorf("station %s: %w", sc.ID, err)
	}
	for _, ec := range sc.EVSEs {
		ecfg := []roaming.EVSEConfigurator{
			roaming.WithEVSEDescription(ec.Description),
			roaming.WithMaxPowerKW(ec.MaxPowerKW),
		}
		if ec.Status != "" {
			ecfg = append(ecfg, roaming.WithEVSEStatus(model.Status(ec.Status)))
		}
		if ec.AdminStatus != "" {
			ecfg = append(ecfg, roaming.WithEVSEAdminStatus(model.AdminStatus(ec.AdminStatus)))
		}
		if _, err := st.CreateNewEVSE(ctx, ids.EVSEID(ec.ID), ecfg...); err != nil {
			return fmt.Errorf("evse %s: %w", ec.ID, err)
		}
	}
	return nil
}

func tokens(in []string) []ids.AuthToken {
	out := make([]ids.AuthToken, len(in))
	for i, t := range in {
		out[i] = ids.AuthToken(t)
	}
	return out
}
