package handlers

import (
	"context"
	"net/http"

	"github.com/crossskill/coachhub/internal/auth"
	"github.com/crossskill/coachhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// AuthService is the subset of *auth.Service the handlers call.
type AuthService interface {
	Login(ctx context.Context, in auth.LoginInput) (user.Public, error)
	Register(ctx context.Context, in auth.RegisterInput) (auth.RegisterResult, error)
	ResetPasswordDirect(ctx context.Context, in auth.ResetPasswordDirectInput) error
	ResetPasswordRequest(ctx context.Context, email string) (auth.ResetRequestResult, error)
	ResetPasswordConfirm(ctx context.Context, in auth.ResetPasswordConfirmInput) error
}

const passwordResetDone = "Password has been reset successfully"

type AuthHandler struct {
	svc          AuthService
	exposeErrors bool
}

func NewAuthHandler(svc AuthService, exposeErrors bool) *AuthHandler {
	return &AuthHandler{svc: svc, exposeErrors: exposeErrors}
}

type LoginRequest struct {
	Username string `json:"username" binding:"max=128"`
	Password string `json:"password" binding:"max=256"`
	Role     string `json:"role" binding:"max=32"`
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"max=256"`
	Email    string `json:"email" binding:"max=254"`
	Username string `json:"username" binding:"max=128"`
	Password string `json:"password" binding:"max=256"`
	Role     string `json:"role" binding:"max=32"`
}

// ResetPasswordRequest carries either username+newPassword (direct reset)
// or email alone (token request).
type ResetPasswordRequest struct {
	Username    string `json:"username" binding:"max=128"`
	NewPassword string `json:"newPassword" binding:"max=256"`
	Email       string `json:"email" binding:"max=254"`
}

type ResetPasswordConfirmRequest struct {
	Token       string `json:"token" binding:"max=256"`
	Username    string `json:"username" binding:"max=128"`
	NewPassword string `json:"newPassword" binding:"max=256"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.svc.Login(ctx.Request.Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Role:     user.Role(req.Role),
	})
	if err != nil {
		respondServiceError(ctx, err, h.exposeErrors)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.svc.Register(ctx.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     user.Role(req.Role),
	})
	if err != nil {
		respondServiceError(ctx, err, h.exposeErrors)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": res.Message,
		"user":    res.User,
	})
}

// ResetPassword dispatches on the fields present. username+newPassword wins
// over email.
func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	switch {
	case req.Username != "" && req.NewPassword != "":
		err := h.svc.ResetPasswordDirect(ctx.Request.Context(), auth.ResetPasswordDirectInput{
			Username:    req.Username,
			NewPassword: req.NewPassword,
		})
		if err != nil {
			respondServiceError(ctx, err, h.exposeErrors)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": passwordResetDone})

	case req.Email != "" && req.Username == "" && req.NewPassword == "":
		res, err := h.svc.ResetPasswordRequest(ctx.Request.Context(), req.Email)
		if err != nil {
			respondServiceError(ctx, err, h.exposeErrors)
			return
		}

		body := gin.H{"success": true, "message": res.Message}
		if res.Token != "" {
			body["token"] = res.Token
			body["resetLink"] = res.ResetLink
		}
		ctx.JSON(http.StatusOK, body)

	default:
		RespondBadRequest(ctx, "Either email (for token generation) or username + newPassword (for direct reset) is required", nil)
	}
}

func (h *AuthHandler) ResetPasswordConfirm(ctx *gin.Context) {
	var req ResetPasswordConfirmRequest
	if !BindJSON(ctx, &req) {
		return
	}

	err := h.svc.ResetPasswordConfirm(ctx.Request.Context(), auth.ResetPasswordConfirmInput{
		Token:       req.Token,
		Username:    req.Username,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		respondServiceError(ctx, err, h.exposeErrors)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": passwordResetDone})
}
