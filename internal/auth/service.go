// Package auth implements login, registration and both password reset flows
// over the user and reset-token stores. Coach and student accounts are
// mirrored to the external directory on a best-effort basis; the local store
// is always the source of truth.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/crossskill/coachhub/internal/directory"
	"github.com/crossskill/coachhub/internal/domain/resettoken"
	"github.com/crossskill/coachhub/internal/domain/user"
	"github.com/crossskill/coachhub/internal/notifications"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
	"github.com/crossskill/coachhub/internal/security"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	MinPasswordLength = 6

	genericResetMessage = "If an account exists with this email, a password reset link has been sent."
	devResetMessage     = "Password reset link generated. Check server console or use the link below."
)

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	UpdatePassword(ctx context.Context, username, hash string, at time.Time) (user.User, error)
}

type ResetTokenStore interface {
	Issue(ctx context.Context, t resettoken.Token, now time.Time) error
	Lookup(ctx context.Context, token string, now time.Time) (resettoken.Token, error)
	Consume(ctx context.Context, token string, now time.Time) (resettoken.Token, error)
}

type Config struct {
	FrontendURL   string
	ResetTokenTTL time.Duration
	// ExposeResetToken returns the token and link to the caller. Only for
	// non-production environments.
	ExposeResetToken bool
}

type Service struct {
	users     UserStore
	tokens    ResetTokenStore
	directory directory.Directory
	notifier  notifications.Notifier
	cfg       Config
	log       *slog.Logger
	prom      *observability.Prom
	validate  *validator.Validate

	now      func() time.Time
	newToken func() (string, error)
}

func NewService(
	users UserStore,
	tokens ResetTokenStore,
	dir directory.Directory,
	notifier notifications.Notifier,
	cfg Config,
	log *slog.Logger,
	prom *observability.Prom,
) *Service {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if dir == nil {
		dir = directory.Disabled{}
	}
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notifications.NewLogNotifier(log)
	}

	return &Service{
		users:     users,
		tokens:    tokens,
		directory: dir,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		prom:      prom,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  security.NewResetToken,
	}
}

type LoginInput struct {
	Username string    `validate:"required"`
	Password string    `validate:"required"`
	Role     user.Role `validate:"required"`
}

// Login succeeds only when username, password and role all match one record.
// Every miss is reported as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (user.Public, error) {
	if err := s.check(in, "Username, password, and role are required"); err != nil {
		return user.Public{}, err
	}

	u, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			return user.Public{}, fmt.Errorf("login lookup: %w", err)
		}
		security.BurnPasswordCheck(in.Password)
		s.prom.AuthResult("login", "invalid_credentials")
		return user.Public{}, ErrInvalidCredentials
	}

	if !s.passwordMatches(u, in.Password) || u.Role != in.Role {
		s.prom.AuthResult("login", "invalid_credentials")
		return user.Public{}, ErrInvalidCredentials
	}

	if u.PasswordHash == "" {
		s.upgradeLegacyPassword(ctx, u, in.Password)
	}

	s.prom.AuthResult("login", "ok")
	return u.ToPublic(), nil
}

func (s *Service) passwordMatches(u user.User, plain string) bool {
	if u.PasswordHash != "" {
		return security.CheckPassword(u.PasswordHash, plain) == nil
	}
	if u.LegacyPassword != "" {
		security.BurnPasswordCheck(plain)
		return security.CheckLegacyPassword(u.LegacyPassword, plain)
	}
	security.BurnPasswordCheck(plain)
	return false
}

// upgradeLegacyPassword replaces a plaintext record with a bcrypt hash after a
// successful login. Failure leaves the record as it was.
func (s *Service) upgradeLegacyPassword(ctx context.Context, u user.User, plain string) {
	hash, err := security.HashPassword(plain)
	if err == nil {
		_, err = s.users.UpdatePassword(ctx, u.Username, hash, s.now())
	}
	if err != nil {
		s.log.WarnContext(ctx, "could not upgrade legacy password", "user_id", u.ID, "err", err)
		return
	}
	s.log.InfoContext(ctx, "legacy password upgraded to bcrypt", "user_id", u.ID)
}

type RegisterInput struct {
	Name     string    `validate:"required"`
	Email    string    `validate:"required"`
	Username string    `validate:"required"`
	Password string    `validate:"required"`
	Role     user.Role `validate:"required"`
}

type RegisterResult struct {
	User    user.Public
	Message string
	// LocalOnly is set when a directory-backed role could not be mirrored.
	LocalOnly bool
}

// Register creates an account. Admins are local only. Coaches and students are
// registered with the directory first; a 4xx rejection from the directory
// fails the registration, any other directory failure falls back to a
// local-only account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if err := s.check(in, "All fields are required"); err != nil {
		return RegisterResult{}, err
	}
	if !in.Role.Valid() {
		return RegisterResult{}, &ValidationError{Message: "Invalid role. Must be admin, coach, or student", Fields: []string{"role"}}
	}

	taken, err := s.users.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register lookup: %w", err)
	}
	if taken {
		s.prom.AuthResult("register", "duplicate")
		return RegisterResult{}, ErrDuplicateUser
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := user.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		Email:        in.Email,
		Name:         in.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res := RegisterResult{Message: in.Role.Title() + " account created successfully"}

	if in.Role.SyncsWithDirectory() {
		dirUser, err := s.directory.Register(ctx, directory.RegisterInput{
			Name:     in.Name,
			Email:    in.Email,
			Username: in.Username,
			Password: in.Password,
			Role:     string(in.Role),
		})

		var rejected *directory.RejectedError
		switch {
		case err == nil:
			u.ExternalID = dirUser.ID
		case errors.As(err, &rejected) && rejected.ClientError():
			s.prom.AuthResult("register", "directory_rejected")
			return RegisterResult{}, err
		default:
			s.log.WarnContext(ctx, "directory registration failed, registering locally",
				"username", in.Username, "role", in.Role, "err", err)
			res.Message = "Account created locally (directory unavailable)"
			res.LocalOnly = true
		}
	}

	created, err := s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUser) {
			s.prom.AuthResult("register", "duplicate")
			return RegisterResult{}, ErrDuplicateUser
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	s.prom.AuthResult("register", "ok")
	res.User = created.ToPublic()
	return res, nil
}

type ResetPasswordDirectInput struct {
	Username    string `validate:"required"`
	NewPassword string `validate:"required"`
}

// ResetPasswordDirect sets a new password for username without a token.
func (s *Service) ResetPasswordDirect(ctx context.Context, in ResetPasswordDirectInput) error {
	if err := s.check(in, "Username and new password are required"); err != nil {
		return err
	}
	if err := checkPasswordLength(in.NewPassword); err != nil {
		return err
	}

	u, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.prom.AuthResult("reset_direct", "invalid_username")
			return ErrInvalidUsername
		}
		return fmt.Errorf("reset lookup: %w", err)
	}

	if err := s.setPassword(ctx, u.Username, in.NewPassword); err != nil {
		return err
	}

	s.prom.AuthResult("reset_direct", "ok")
	s.syncPassword(ctx, "reset_direct", u, in.NewPassword)
	return nil
}

type ResetRequestResult struct {
	Message   string
	Token     string
	ResetLink string
}

// ResetPasswordRequest issues a reset token for email. Unknown addresses get
// the same answer as known ones.
func (s *Service) ResetPasswordRequest(ctx context.Context, email string) (ResetRequestResult, error) {
	if email == "" {
		return ResetRequestResult{}, &ValidationError{Message: "Email is required", Fields: []string{"email"}}
	}

	generic := ResetRequestResult{Message: genericResetMessage}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.prom.AuthResult("reset_request", "unknown_email")
			return generic, nil
		}
		return ResetRequestResult{}, fmt.Errorf("reset request lookup: %w", err)
	}

	token, err := s.newToken()
	if err != nil {
		return ResetRequestResult{}, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	t := resettoken.Token{Email: u.Email, Token: token, ExpiresAt: now.Add(s.cfg.ResetTokenTTL)}

	if err := s.tokens.Issue(ctx, t, now); err != nil {
		return ResetRequestResult{}, fmt.Errorf("store reset token: %w", err)
	}
	s.prom.ResetTokens("issued", 1)

	link := s.cfg.FrontendURL + "/reset-password?token=" + url.QueryEscape(token)

	if err := s.notifier.SendPasswordReset(ctx, notifications.PasswordResetInput{
		Email:     u.Email,
		Username:  u.Username,
		ResetLink: link,
		ExpiresAt: t.ExpiresAt,
	}); err != nil {
		s.log.WarnContext(ctx, "could not deliver password reset link", "user_id", u.ID, "err", err)
	}

	if u.Role.SyncsWithDirectory() {
		syncCtx := context.WithoutCancel(ctx)
		if err := s.directory.RequestPasswordReset(syncCtx, u.Email, link); err != nil {
			s.log.WarnContext(ctx, "directory sync failed",
				"op", "reset_request", "user_id", u.ID, "err", err)
		}
	}

	s.prom.AuthResult("reset_request", "ok")

	if !s.cfg.ExposeResetToken {
		return generic, nil
	}
	return ResetRequestResult{Message: devResetMessage, Token: token, ResetLink: link}, nil
}

type ResetPasswordConfirmInput struct {
	Token       string `validate:"required"`
	Username    string `validate:"required"`
	NewPassword string `validate:"required"`
}

// ResetPasswordConfirm redeems a reset token. The token is single use and the
// presented username must own the email the token was issued for.
func (s *Service) ResetPasswordConfirm(ctx context.Context, in ResetPasswordConfirmInput) error {
	if err := s.check(in, "Token, username, and new password are required"); err != nil {
		return err
	}
	if err := checkPasswordLength(in.NewPassword); err != nil {
		return err
	}

	now := s.now()

	t, err := s.tokens.Lookup(ctx, in.Token, now)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			s.prom.AuthResult("reset_confirm", "invalid_token")
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("reset token lookup: %w", err)
	}

	u, err := s.users.GetByEmail(ctx, t.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("reset confirm lookup: %w", err)
	}

	if u.Username != in.Username {
		s.prom.AuthResult("reset_confirm", "username_mismatch")
		return ErrUsernameMismatch
	}

	hash, err := security.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// Consume before writing so two concurrent confirmations cannot both win.
	// A failed write restores the token.
	if _, err := s.tokens.Consume(ctx, in.Token, now); err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	s.prom.ResetTokens("consumed", 1)

	if _, err := s.users.UpdatePassword(ctx, u.Username, hash, now); err != nil {
		// put the token back so the link still works once the store recovers
		if rerr := s.tokens.Issue(context.WithoutCancel(ctx), t, now); rerr != nil {
			s.log.WarnContext(ctx, "could not restore reset token after failed update", "user_id", u.ID, "err", rerr)
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.prom.AuthResult("reset_confirm", "ok")
	s.syncPassword(ctx, "reset_confirm", u, in.NewPassword)
	return nil
}

func (s *Service) setPassword(ctx context.Context, username, plain string) error {
	hash, err := security.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.users.UpdatePassword(ctx, username, hash, s.now()); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrInvalidUsername
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// syncPassword mirrors a password change to the directory. The local change
// has already happened, so failures are only logged.
func (s *Service) syncPassword(ctx context.Context, op string, u user.User, plain string) {
	if !u.Role.SyncsWithDirectory() {
		return
	}

	if err := s.directory.ConfirmPasswordReset(context.WithoutCancel(ctx), u.Email, plain); err != nil {
		s.log.WarnContext(ctx, "directory sync failed",
			"op", op, "user_id", u.ID, "role", u.Role, "err", err)
	}
}

func (s *Service) check(in any, message string) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: message}
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, jsonName(fe.Field()))
	}
	return &ValidationError{Message: message, Fields: fields}
}

// jsonName turns a Go field name into the request field it came from.
func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func checkPasswordLength(p string) error {
	if utf8.RuneCountInString(p) < MinPasswordLength {
		return &ValidationError{
			Message: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength),
			Fields:  []string{"newPassword"},
		}
	}
	return nil
}
