package status

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/model"
)

func TestScheduleInsertAndEvict(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s := NewSchedule(3, model.StatusUnknown, base)
	steps := []model.Status{model.StatusAvailable, model.StatusReserved, model.StatusCharging, model.StatusAvailable}
	for i, st := range steps {
		changed, err := s.Insert(st, base.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, err)
		require.True(t, changed)
	}
	assert.Equal(t, model.StatusAvailable, s.Current())
	h := s.History()
	require.Len(t, h, 3)
	assert.Equal(t, model.StatusCharging, h[1].Status)
	assert.Equal(t, model.StatusReserved, h[2].Status)
}

func TestScheduleRejectsOutOfOrder(t *testing.T) {
	base := time.Now()
	s := NewSchedule(0, model.StatusAvailable, base)
	_, err := s.Insert(model.StatusCharging, base.Add(-time.Second))
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, model.StatusAvailable, s.Current())

	changed, err := s.Insert(model.StatusAvailable, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed, "same status must not count as change")
	assert.Equal(t, 1, s.Len())
}

// The current entry never moves back in time whatever the insert order.
func TestScheduleNeverRegresses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Now()
	all := []model.Status{model.StatusAvailable, model.StatusReserved, model.StatusCharging, model.StatusOffline}
	for run := 0; run < 50; run++ {
		s := NewSchedule(5, model.StatusUnknown, base)
		last := s.CurrentEntry().Timestamp
		for i := 0; i < 40; i++ {
			ts := base.Add(time.Duration(rng.Intn(120)) * time.Second)
			_, _ = s.Insert(all[rng.Intn(len(all))], ts)
			cur := s.CurrentEntry().Timestamp
			if cur.Before(last) {
				t.Fatalf("status regressed from %v to %v", last, cur)
			}
			last = cur
		}
		h := s.History()
		for i := 1; i < len(h); i++ {
			if h[i].Timestamp.After(h[i-1].Timestamp) {
				t.Fatalf("history not ordered newest first")
			}
		}
	}
}

func TestScheduleOnChange(t *testing.T) {
	base := time.Now()
	s := NewSchedule(4, model.StatusAvailable, base)
	var got []Entry[model.Status]
	s.OnChange(func(old, updated Entry[model.Status]) {
		got = append(got, old, updated)
	})
	_, _ = s.Insert(model.StatusAvailable, base.Add(time.Second))
	_, _ = s.Insert(model.StatusCharging, base.Add(2*time.Second))
	require.Len(t, got, 2)
	assert.Equal(t, model.StatusAvailable, got[0].Status)
	assert.Equal(t, model.StatusCharging, got[1].Status)
}
