package handlers

import (
	"errors"
	"net/http"

	"github.com/crossskill/coachhub/internal/audit"
	"github.com/crossskill/coachhub/internal/livekit"
	"github.com/gin-gonic/gin"
)

type TokenIssuer interface {
	Issue(identity, room, role string) (string, error)
	URL() string
}

type LiveKitHandler struct {
	issuer TokenIssuer
	audit  *audit.Logger
}

func NewLiveKitHandler(issuer TokenIssuer, auditLog *audit.Logger) *LiveKitHandler {
	return &LiveKitHandler{issuer: issuer, audit: auditLog}
}

// Token handles GET /token?name&room&role.
func (h *LiveKitHandler) Token(ctx *gin.Context) {
	name := ctx.Query("name")
	room := ctx.Query("room")
	role := ctx.DefaultQuery("role", "host")

	if name == "" || room == "" {
		RespondBadRequest(ctx, "Name and room are required", nil)
		return
	}

	token, err := h.issuer.Issue(name, room, role)
	if err != nil {
		_ = ctx.Error(err)
		code := "token_failed"
		if errors.Is(err, livekit.ErrNotConfigured) {
			code = "livekit_not_configured"
		}
		RespondError(ctx, http.StatusInternalServerError, code, "Failed to generate token", nil)
		return
	}

	h.audit.Join(ctx.Request.Context(), name, room, role)

	ctx.JSON(http.StatusOK, gin.H{"token": token, "url": h.issuer.URL()})
}
