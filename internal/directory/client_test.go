package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "key-1", APISecret: "secret-1"}, srv.Client())
}

func TestRegisterSendsCredentialsAndParsesID(t *testing.T) {
	var gotPath, gotKey, gotSecret string
	var gotBody RegisterInput

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotSecret = r.Header.Get("X-API-Secret")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dir-42","name":"Coach"}`))
	})

	res, err := c.Register(context.Background(), RegisterInput{Name: "Coach", Email: "c@x.com", Username: "coach", Password: "secret1", Role: "coach"})
	require.NoError(t, err)

	assert.Equal(t, "dir-42", res.ID)
	assert.Equal(t, "/api/users/register", gotPath)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "secret-1", gotSecret)
	assert.Equal(t, "coach", gotBody.Username)
}

func TestPostErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantRejected bool
		wantStatus   int
	}{
		{name: "4xx with error field", status: http.StatusConflict, body: `{"error":"Email already registered"}`, wantRejected: true, wantStatus: http.StatusConflict},
		{name: "5xx with error field", status: http.StatusBadGateway, body: `{"error":"upstream down"}`, wantRejected: true, wantStatus: http.StatusBadGateway},
		{name: "4xx without body", status: http.StatusBadRequest, body: ``},
		{name: "5xx html", status: http.StatusInternalServerError, body: `<html>oops</html>`},
		{name: "4xx empty error", status: http.StatusBadRequest, body: `{"error":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.ConfirmPasswordReset(context.Background(), "a@x.com", "secret1")
			require.Error(t, err)

			var rejected *RejectedError
			if tt.wantRejected {
				require.ErrorAs(t, err, &rejected)
				assert.Equal(t, tt.wantStatus, rejected.Status)
				assert.False(t, errors.Is(err, ErrUnavailable))
				return
			}
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.False(t, errors.As(err, &rejected))
		})
	}
}

func TestRegisterUnparsableSuccessIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.Register(context.Background(), RegisterInput{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, &http.Client{Timeout: time.Second})

	err := c.RequestPasswordReset(context.Background(), "a@x.com", "http://link")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDisabledIsUnavailable(t *testing.T) {
	_, err := Disabled{}.Register(context.Background(), RegisterInput{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, Disabled{}.ConfirmPasswordReset(context.Background(), "", ""), ErrUnavailable)
}

type fakeDirectory struct {
	registerFn func(ctx context.Context, in RegisterInput) (RegisterResult, error)
	confirmFn  func(ctx context.Context, email, newPassword string) error
}

func (f *fakeDirectory) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, in)
	}
	return RegisterResult{}, nil
}

func (f *fakeDirectory) RequestPasswordReset(ctx context.Context, email, resetLink string) error {
	return nil
}

func (f *fakeDirectory) ConfirmPasswordReset(ctx context.Context, email, newPassword string) error {
	if f.confirmFn != nil {
		return f.confirmFn(ctx, email, newPassword)
	}
	return nil
}

func TestProtectedTimesOutSlowCalls(t *testing.T) {
	inner := &fakeDirectory{confirmFn: func(ctx context.Context, email, newPassword string) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p := NewProtected(inner, ProtectedConfig{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	err := p.ConfirmPasswordReset(context.Background(), "a@x.com", "secret1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProtectedOpensOnFailuresNotRejections(t *testing.T) {
	var calls atomic.Int32
	rejecting := true
	inner := &fakeDirectory{confirmFn: func(ctx context.Context, email, newPassword string) error {
		calls.Add(1)
		if rejecting {
			return &RejectedError{Status: 400, Message: "bad"}
		}
		return ErrUnavailable
	}}
	p := NewProtected(inner, ProtectedConfig{FailureThreshold: 2, Cooldown: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		var rejected *RejectedError
		assert.ErrorAs(t, p.ConfirmPasswordReset(ctx, "a@x.com", "x"), &rejected)
	}

	rejecting = false
	_ = p.ConfirmPasswordReset(ctx, "a@x.com", "x")
	_ = p.ConfirmPasswordReset(ctx, "a@x.com", "x")

	err := p.ConfirmPasswordReset(ctx, "a@x.com", "x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), calls.Load())
}

func TestProtectedPassesRegisterResult(t *testing.T) {
	inner := &fakeDirectory{registerFn: func(ctx context.Context, in RegisterInput) (RegisterResult, error) {
		return RegisterResult{ID: "dir-" + in.Username}, nil
	}}
	p := NewProtected(inner, ProtectedConfig{}, nil)

	res, err := p.Register(context.Background(), RegisterInput{Username: "coach"})
	require.NoError(t, err)
	assert.Equal(t, "dir-coach", res.ID)
}
