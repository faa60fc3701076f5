// Package cdrkpi rebuilds KPI aggregates from stored charge detail records.
package cdrkpi

import (
	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/model"
)

// Backfill processes historical charge detail records and populates the store.
// Records without an operator are skipped. It returns the number of records
// added.
func Backfill(store kpi.Store, history []model.ChargeDetailRecord) (int, error) {
	n := 0
	for _, cdr := range history {
		if cdr.OperatorID == "" {
			continue
		}
		if err := store.Add(kpi.FromCDR(cdr)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
