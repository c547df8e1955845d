package livekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueGrantsRoomJoin(t *testing.T) {
	iss := NewIssuer("APIkey123", "s3cr3t-s3cr3t-s3cr3t", "wss://lk.example.com", time.Hour)
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return fixed }

	raw, err := iss.Issue("alice", "yoga-101", "host")
	require.NoError(t, err)

	claims, err := iss.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "APIkey123", claims.Issuer)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, fixed.Add(time.Hour), claims.ExpiresAt.Time.UTC())
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "yoga-101", claims.Video.Room)
	assert.True(t, *claims.Video.CanPublish)
	assert.True(t, *claims.Video.CanSubscribe)
}

func TestIssueViewerCannotPublish(t *testing.T) {
	iss := NewIssuer("APIkey123", "s3cr3t-s3cr3t-s3cr3t", "", 0)

	raw, err := iss.Issue("bob", "yoga-101", RoleViewer)
	require.NoError(t, err)

	claims, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.False(t, *claims.Video.CanPublish)
}

func TestIssueRejectsPlaceholderCredentials(t *testing.T) {
	tests := []struct {
		name, key, secret string
	}{
		{name: "empty", key: "", secret: ""},
		{name: "demo key", key: DemoAPIKey, secret: "real-secret"},
		{name: "demo secret", key: "real-key", secret: DemoAPISecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIssuer(tt.key, tt.secret, "", 0).Issue("alice", "room", "host")
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestIssueRequiresIdentityAndRoom(t *testing.T) {
	iss := NewIssuer("APIkey123", "s3cr3t", "", 0)

	_, err := iss.Issue("", "room", "host")
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = iss.Issue("alice", "", "host")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	raw, err := NewIssuer("APIkey123", "one-secret", "", 0).Issue("alice", "room", "host")
	require.NoError(t, err)

	_, err = NewIssuer("APIkey123", "other-secret", "", 0).Parse(raw)
	assert.Error(t, err)
}
