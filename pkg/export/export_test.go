package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/model"
)

func sample() []model.ChargeDetailRecord {
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	return []model.ChargeDetailRecord{{
		SessionID:     "s1",
		OperatorID:    "DE*AAA",
		EVSEID:        "DE*AAA*E1",
		ProviderID:    "DE-EMP",
		SessionStart:  start,
		SessionEnd:    start.Add(90 * time.Minute),
		MeterStartKWh: 100,
		MeterStopKWh:  112.5,
	}}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "session_id,operator_id,evse_id,provider_id,session_start,session_end,energy_kwh,duration_s", lines[0])
	assert.Equal(t, "s1,DE*AAA,DE*AAA*E1,DE-EMP,2026-05-04T08:00:00Z,2026-05-04T09:30:00Z,12.5,5400", lines[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))
	var out []model.ChargeDetailRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 12.5, out[0].EnergyKWh())
}

func TestWriteKPICSV(t *testing.T) {
	var buf bytes.Buffer
	recs := []kpi.Record{{OperatorID: "DE*AAA", Date: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), Sessions: 2, EnergyKWh: 9}}
	require.NoError(t, WriteKPICSV(&buf, recs))
	assert.Contains(t, buf.String(), "DE*AAA,2026-05-04,2,9,4.5")
}
