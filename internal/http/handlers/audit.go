package handlers

import (
	"net/http"

	"github.com/crossskill/coachhub/internal/audit"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(auditLog *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLog}
}

// Record appends the posted JSON object to the audit log.
func (h *AuditHandler) Record(ctx *gin.Context) {
	var entry map[string]any
	if !BindJSON(ctx, &entry) {
		return
	}

	h.audit.Record(ctx.Request.Context(), entry)
	ctx.Status(http.StatusOK)
}
