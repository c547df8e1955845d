package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 10 * time.Second},
		{60, 10 * time.Second},
	}

	for _, tt := range tests {
		got := Backoff(tt.attempt)
		assert.GreaterOrEqual(t, got, tt.min, "attempt %d", tt.attempt)
		assert.Less(t, got, tt.min+250*time.Millisecond, "attempt %d", tt.attempt)
	}
}

func TestConnectWithRetryGivesUpOnBadURL(t *testing.T) {
	_, err := ConnectWithRetry(context.Background(), "not a url ::", 1, nil)
	require.Error(t, err)
}

func TestConnectWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConnectWithRetry(ctx, "postgres://u:p@127.0.0.1:1/none?connect_timeout=1", 3, nil)
	require.Error(t, err)
}
