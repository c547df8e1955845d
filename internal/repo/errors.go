// Package repo holds the errors shared by every persistence driver.
package repo

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateUser    = errors.New("username or email already exists")
	ErrTokenNotFound    = errors.New("reset token not found or expired")
	ErrStoreUnavailable = errors.New("store unavailable")
)
