package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(raw), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestJoinWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)

	l.Join(context.Background(), "alice", "yoga-101", "host")

	got := lines(t, buf.String())
	require.Len(t, got, 1)
	assert.Equal(t, "JOIN", got[0]["event"])
	assert.Equal(t, "alice", got[0]["name"])
	assert.Equal(t, "yoga-101", got[0]["room"])
	assert.Equal(t, "host", got[0]["role"])
	assert.NotEmpty(t, got[0]["timestamp"])
	assert.NotContains(t, got[0], "level")
}

func TestRecordKeepsClientFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)

	l.Record(context.Background(), map[string]any{
		"event":     "LEAVE",
		"room":      "yoga-101",
		"timestamp": "client supplied",
		"meta":      map[string]any{"reason": "closed tab"},
	})
	l.Record(context.Background(), map[string]any{"note": "no event"})

	got := lines(t, buf.String())
	require.Len(t, got, 2)
	assert.Equal(t, "LEAVE", got[0]["event"])
	assert.Equal(t, "yoga-101", got[0]["room"])
	assert.NotEqual(t, "client supplied", got[0]["timestamp"])
	assert.Equal(t, map[string]any{"reason": "closed tab"}, got[0]["meta"])

	assert.NotContains(t, got[1], "event")
	assert.Equal(t, "no event", got[1]["note"])
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")

	for i := 0; i < 2; i++ {
		l, err := Open(path, nil)
		require.NoError(t, err)
		l.Join(context.Background(), "alice", "room", "host")
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, lines(t, string(data)), 2)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	l := New(failingWriter{}, slog.New(slog.NewJSONHandler(&logs, nil)))

	l.Join(context.Background(), "alice", "room", "host")

	assert.Contains(t, logs.String(), "could not write audit entry")
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	l.Join(context.Background(), "alice", "room", "host")
	assert.NoError(t, l.Close())
}

func TestRecordKeepsReservedClientKeysApart(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, nil)
	ctx := context.Background()

	l.Record(ctx, map[string]any{
		"time":   "yesterday",
		"level":  "debug",
		"msg":    "hello",
		"event":  42,
		"client": "web",
		"room":   "yoga-101",
	})

	done := make(chan struct{})
	go func() {
		l.Join(ctx, "alice", "yoga-101", "host")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Join blocked after a client entry with reserved keys")
	}

	got := lines(t, buf.String())
	require.Len(t, got, 2)

	entry := got[0]
	assert.NotContains(t, entry, "event")
	assert.NotContains(t, entry, "time")
	assert.NotContains(t, entry, "level")
	assert.NotContains(t, entry, "msg")
	assert.NotEmpty(t, entry["timestamp"])
	assert.Equal(t, "yoga-101", entry["room"])
	assert.Equal(t, map[string]any{
		"time":   "yesterday",
		"level":  "debug",
		"msg":    "hello",
		"event":  float64(42),
		"client": "web",
	}, entry["client"])

	assert.Equal(t, "JOIN", got[1]["event"])
}

func TestRecordSurvivesHandlerPanic(t *testing.T) {
	l := New(io.Discard, nil)
	l.h = panicHandler{}

	func() {
		defer func() { _ = recover() }()
		l.Join(context.Background(), "alice", "room", "host")
	}()

	locked := make(chan struct{})
	go func() {
		l.mu.Lock()
		l.mu.Unlock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-time.After(2 * time.Second):
		t.Fatal("audit mutex left locked after a handler panic")
	}
}

type panicHandler struct{ slog.Handler }

func (panicHandler) Handle(context.Context, slog.Record) error { panic("boom") }
