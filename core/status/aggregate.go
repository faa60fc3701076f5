package status

import (
	"fmt"
	"sort"

	"github.com/kilianp07/roaming/core/model"
)

// Aggregator computes one status from a snapshot of the children's current
// statuses keyed by child id. A nil Aggregator disables aggregation.
type Aggregator func(snapshot map[string]model.Status) model.Status

// rank orders statuses from most to least useful for a driver.
var rank = map[model.Status]int{
	model.StatusAvailable:    0,
	model.StatusReserved:     1,
	model.StatusCharging:     2,
	model.StatusOutOfService: 3,
	model.StatusOffline:      4,
	model.StatusUnknown:      5,
}

func rankOf(s model.Status) int {
	if r, ok := rank[s]; ok {
		return r
	}
	return len(rank)
}

// BestAvailable reports the most useful status among the children: a pool with
// one available station is available.
func BestAvailable(snapshot map[string]model.Status) model.Status {
	if len(snapshot) == 0 {
		return model.StatusUnknown
	}
	best := model.StatusUnknown
	for _, s := range snapshot {
		if rankOf(s) < rankOf(best) {
			best = s
		}
	}
	return best
}

// Majority reports the most frequent status, ties broken by usefulness.
func Majority(snapshot map[string]model.Status) model.Status {
	if len(snapshot) == 0 {
		return model.StatusUnknown
	}
	counts := make(map[model.Status]int)
	for _, s := range snapshot {
		counts[s]++
	}
	statuses := make([]model.Status, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool {
		if counts[statuses[i]] != counts[statuses[j]] {
			return counts[statuses[i]] > counts[statuses[j]]
		}
		return rankOf(statuses[i]) < rankOf(statuses[j])
	})
	return statuses[0]
}

// AggregatorByName resolves a configured aggregator. The empty name and
// "none" disable aggregation.
func AggregatorByName(name string) (Aggregator, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "best_available", "priority":
		return BestAvailable, nil
	case "majority":
		return Majority, nil
	default:
		return nil, fmt.Errorf("unknown status aggregator %q", name)
	}
}
