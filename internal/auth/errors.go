package auth

import (
	"errors"
	"strings"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrDuplicateUser         = errors.New("username or email already exists")
	ErrInvalidUsername       = errors.New("invalid username")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrUsernameMismatch      = errors.New("username does not match the account associated with this reset link")
	ErrUserNotFound          = errors.New("user not found")
)

// ValidationError is returned before any store is touched.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.Fields, ", ") + ")"
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
