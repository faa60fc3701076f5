package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kilianp07/roaming/core/result"
)

func spanAttr(s sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key(key) {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestOperationSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	res, err := f.c.Reserve(ctx, ReserveRequest{Target: EVSE("DE*AAA*E1"), EventTrackingID: "trk-1"})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())

	f.nodes["DE*AAA"].start = func(RemoteStartRequest) (result.RemoteStart, error) {
		return result.RemoteStart{}, errors.New("backend down")
	}
	_, err = f.c.RemoteStart(ctx, RemoteStartRequest{Target: EVSE("DE*AAA*E1")})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	reserve := spans[0]
	assert.Equal(t, "coordinator.reserve", reserve.Name())
	assert.Equal(t, "network", spanAttr(reserve, "roaming.level"))
	assert.Equal(t, "net", spanAttr(reserve, "roaming.node"))
	assert.Equal(t, "evse:DE*AAA*E1", spanAttr(reserve, "roaming.target"))
	assert.Equal(t, "trk-1", spanAttr(reserve, "roaming.event_tracking_id"))
	assert.Equal(t, "success", spanAttr(reserve, "roaming.result"))
	assert.NotEqual(t, codes.Error, reserve.Status().Code)

	start := spans[1]
	assert.Equal(t, "coordinator.remote_start", start.Name())
	assert.Equal(t, "error", spanAttr(start, "roaming.result"))
	assert.Equal(t, codes.Error, start.Status().Code)
}
