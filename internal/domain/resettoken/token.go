package resettoken

import "time"

// Token authorises one password change for the account registered under Email.
type Token struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token can no longer be redeemed at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
