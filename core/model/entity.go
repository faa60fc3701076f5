// Package model holds the domain records exchanged between the roaming
// network entities, the coordinators and the authorization backends.
package model

// EntityKind identifies a node type of the roaming network.
type EntityKind int

const (
	KindNetwork EntityKind = iota
	KindOperator
	KindChargingPool
	KindChargingStation
	KindEVSE
	KindProvider
	KindRoamingProvider
)

// String returns the lowercase name of the entity kind.
func (k EntityKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindOperator:
		return "operator"
	case KindChargingPool:
		return "charging_pool"
	case KindChargingStation:
		return "charging_station"
	case KindEVSE:
		return "evse"
	case KindProvider:
		return "provider"
	case KindRoamingProvider:
		return "roaming_provider"
	default:
		return "unknown"
	}
}

// Level is the granularity at which a reservation or a remote start targets
// the infrastructure.
type Level int

const (
	LevelEVSE Level = iota
	LevelChargingStation
	LevelChargingPool
)

func (l Level) String() string {
	switch l {
	case LevelEVSE:
		return "evse"
	case LevelChargingStation:
		return "charging_station"
	case LevelChargingPool:
		return "charging_pool"
	default:
		return "unknown"
	}
}

// ParseLevel converts the textual representation back into a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "evse", "":
		return LevelEVSE, true
	case "charging_station", "station":
		return LevelChargingStation, true
	case "charging_pool", "pool":
		return LevelChargingPool, true
	default:
		return 0, false
	}
}
