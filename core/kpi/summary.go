package kpi

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/roaming/core/model"
)

// Summary describes the distribution of a set of charge detail records.
type Summary struct {
	Sessions        int           `json:"sessions"`
	TotalEnergyKWh  float64       `json:"total_energy_kwh"`
	MeanEnergyKWh   float64       `json:"mean_energy_kwh"`
	StdDevEnergyKWh float64       `json:"stddev_energy_kwh"`
	MedianEnergyKWh float64       `json:"median_energy_kwh"`
	MeanDuration    time.Duration `json:"mean_duration"`
	StdDevDuration  time.Duration `json:"stddev_duration"`
	P95Duration     time.Duration `json:"p95_duration"`
}

// Summarize computes the summary statistics of cdrs. The standard
// deviations are zero for fewer than two records.
func Summarize(cdrs []model.ChargeDetailRecord) Summary {
	n := len(cdrs)
	if n == 0 {
		return Summary{}
	}
	energy := make([]float64, n)
	duration := make([]float64, n)
	var total float64
	for i, c := range cdrs {
		energy[i] = c.EnergyKWh()
		duration[i] = c.Duration().Seconds()
		total += energy[i]
	}

	s := Summary{Sessions: n, TotalEnergyKWh: total}
	meanE, sdE := stat.MeanStdDev(energy, nil)
	meanD, sdD := stat.MeanStdDev(duration, nil)
	if n < 2 {
		sdE, sdD = 0, 0
	}
	s.MeanEnergyKWh = meanE
	s.StdDevEnergyKWh = sdE
	s.MeanDuration = seconds(meanD)
	s.StdDevDuration = seconds(sdD)

	sort.Float64s(energy)
	sort.Float64s(duration)
	s.MedianEnergyKWh = stat.Quantile(0.5, stat.Empirical, energy, nil)
	s.P95Duration = seconds(stat.Quantile(0.95, stat.Empirical, duration, nil))
	return s
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
