package notifications

import (
	"context"
	"time"
)

type PasswordResetInput struct {
	Email     string
	Username  string
	ResetLink string
	ExpiresAt time.Time
}

// Notifier delivers a password reset link to the account owner.
type Notifier interface {
	SendPasswordReset(ctx context.Context, input PasswordResetInput) error
}
