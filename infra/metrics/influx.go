package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/roaming/core/metrics"
	"github.com/kilianp07/roaming/infra/logger"
)

// InfluxSink writes roaming events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordOperation writes one completed operation.
func (s *InfluxSink) RecordOperation(ev coremetrics.OperationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("roaming_operation").
		AddTag("operation", ev.Operation).
		AddTag("level", ev.Level).
		AddTag("node", ev.Node).
		AddTag("result", ev.Result).
		AddField("runtime_ms", round3(ev.Runtime.Seconds()*1000)).
		AddField("target", ev.Target).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCDR writes a charge detail record with its forwarding outcome.
func (s *InfluxSink) RecordCDR(ev coremetrics.CDREvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := ev.CDR
	p := write.NewPointWithMeasurement("charge_detail_record").
		AddTag("operator_id", string(c.OperatorID)).
		AddTag("evse_id", string(c.EVSEID)).
		AddTag("result", ev.Result)
	if ev.Backend != "" {
		p = p.AddTag("backend", ev.Backend)
	}
	p = p.AddField("session_id", string(c.SessionID)).
		AddField("energy_kwh", round3(c.EnergyKWh())).
		AddField("duration_s", round3(c.Duration().Seconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStatus writes an entity status change.
func (s *InfluxSink) RecordStatus(ev coremetrics.StatusEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("entity_status").
		AddTag("kind", ev.Kind).
		AddTag("id", ev.ID).
		AddTag("admin", strconv.FormatBool(ev.Admin)).
		AddField("status", ev.Status).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
