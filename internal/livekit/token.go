// Package livekit signs room access tokens in the layout the LiveKit server
// expects, so clients can join a session without this service proxying media.
package livekit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DemoAPIKey    = "demo_key"
	DemoAPISecret = "demo_secret"

	RoleViewer = "viewer"
)

var (
	ErrNotConfigured = errors.New("livekit credentials not configured")
	ErrMissingFields = errors.New("identity and room are required")
)

// VideoGrant is the subset of LiveKit's video grant this service hands out.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	apiKey    string
	apiSecret []byte
	url       string
	ttl       time.Duration

	now func() time.Time
}

func NewIssuer(apiKey, apiSecret, url string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		url:       url,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured is false while the credentials are empty or the demo placeholders.
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && len(i.apiSecret) > 0 &&
		i.apiKey != DemoAPIKey && string(i.apiSecret) != DemoAPISecret
}

// URL is the signalling endpoint clients connect to with the token.
func (i *Issuer) URL() string { return i.url }

// Issue returns a signed token letting identity join room. Viewers may
// subscribe but not publish.
func (i *Issuer) Issue(identity, room, role string) (string, error) {
	if identity == "" || room == "" {
		return "", ErrMissingFields
	}
	if !i.Configured() {
		return "", ErrNotConfigured
	}

	now := i.now()
	canPublish := role != RoleViewer
	canSubscribe := true

	claims := Claims{
		Name: identity,
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   &canPublish,
			CanSubscribe: &canSubscribe,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.apiSecret)
}

// Parse verifies a token signed by this issuer. Used by tests and for
// debugging tokens handed out to clients.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.apiSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.apiKey),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
