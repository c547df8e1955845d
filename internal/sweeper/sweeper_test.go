package sweeper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

type pingFn func(ctx context.Context) error

func (p pingFn) Ping(ctx context.Context) error { return p(ctx) }

func TestSweepOnce(t *testing.T) {
	store := &fakeStore{n: 3}
	s := New(Config{}, store, nil, nil)

	assert.True(t, s.LastRun().IsZero())
	assert.Equal(t, 3, s.SweepOnce(context.Background()))
	assert.False(t, s.LastRun().IsZero())
	assert.True(t, s.Healthy())

	store.err = errors.New("disk gone")
	assert.Equal(t, 0, s.SweepOnce(context.Background()))
	assert.False(t, s.Healthy())
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	s := New(Config{Interval: 5 * time.Millisecond}, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHealthRouter(t *testing.T) {
	s := New(Config{}, &fakeStore{}, nil, nil)
	shuttingDown := false
	var pingErr error

	r := HealthRouter(s, pingFn(func(ctx context.Context) error { return pingErr }), func() bool { return shuttingDown })

	tests := []struct {
		name     string
		path     string
		setup    func()
		wantCode int
	}{
		{name: "healthz", path: "/healthz", wantCode: http.StatusOK},
		{name: "ready", path: "/readyz", wantCode: http.StatusOK},
		{name: "store down", path: "/readyz", setup: func() { pingErr = errors.New("down") }, wantCode: http.StatusServiceUnavailable},
		{name: "shutting down", path: "/readyz", setup: func() { pingErr = nil; shuttingDown = true }, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}
