package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLoggerLevelsByEnv(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, "production").Debug("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "dev").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "inside span")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))

	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestLoggerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev")

	ctx := WithRequestID(context.Background(), "req-123")
	log.InfoContext(ctx, "tagged")
	log.InfoContext(ctx, "explicit", "request_id", "other")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "req-123", first["request_id"])
	assert.Equal(t, "other", second["request_id"])
}
