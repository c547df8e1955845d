package handlers

import (
	"errors"
	"net/http"

	"github.com/crossskill/coachhub/internal/auth"
	"github.com/crossskill/coachhub/internal/directory"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every failed response. Error stays a plain
// human-readable string; Code is the machine-readable companion.
type APIError struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString("request_id"); s != "" {
		return s
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, APIError{
		Success:   false,
		Error:     message,
		Code:      code,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

// RespondInternal hides err unless expose is set.
func RespondInternal(ctx *gin.Context, err error, expose bool) {
	if err != nil {
		_ = ctx.Error(err)
	}

	var details any
	if expose && err != nil {
		details = gin.H{"message": err.Error()}
	}
	RespondError(ctx, http.StatusInternalServerError, "internal_error", "Internal server error", details)
}

// respondServiceError maps the auth error taxonomy onto HTTP.
func respondServiceError(ctx *gin.Context, err error, expose bool) {
	var (
		verr     *auth.ValidationError
		rejected *directory.RejectedError
	)

	switch {
	case errors.As(err, &verr):
		var details any
		if len(verr.Fields) > 0 {
			details = gin.H{"fields": verr.Fields}
		}
		RespondError(ctx, http.StatusBadRequest, "validation_error", verr.Message, details)
	case errors.Is(err, auth.ErrInvalidCredentials):
		RespondError(ctx, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials", nil)
	case errors.Is(err, auth.ErrDuplicateUser):
		RespondError(ctx, http.StatusBadRequest, "duplicate_user", "Username or email already exists", nil)
	case errors.Is(err, auth.ErrInvalidUsername):
		RespondError(ctx, http.StatusBadRequest, "invalid_username", "Invalid username", nil)
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		RespondError(ctx, http.StatusBadRequest, "invalid_token", "Invalid or expired reset token", nil)
	case errors.Is(err, auth.ErrUsernameMismatch):
		RespondError(ctx, http.StatusBadRequest, "username_mismatch", "Username does not match the account associated with this reset link", nil)
	case errors.Is(err, auth.ErrUserNotFound):
		RespondError(ctx, http.StatusNotFound, "user_not_found", "User not found", nil)
	case errors.As(err, &rejected) && rejected.ClientError():
		msg := rejected.Message
		if msg == "" {
			msg = "Failed to register with directory"
		}
		RespondError(ctx, rejected.Status, "directory_rejected", msg, nil)
	default:
		RespondInternal(ctx, err, expose)
	}
}

// Recovery turns panics into the standard internal error body.
func Recovery(expose bool) gin.HandlerFunc {
	return gin.CustomRecovery(func(ctx *gin.Context, recovered any) {
		var err error
		if e, ok := recovered.(error); ok {
			err = e
		} else {
			err = errors.New("panic")
		}
		RespondInternal(ctx, err, expose)
		ctx.Abort()
	})
}
