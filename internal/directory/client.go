// Package directory talks to the external user directory that mirrors coach
// and student accounts. Local storage stays the source of truth; callers
// decide which failures they surface.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

// ErrUnavailable covers transport failures and responses that carry no usable
// error message.
var ErrUnavailable = errors.New("directory unavailable")

// RejectedError is a non-2xx response whose body named an error.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("directory rejected request (%d): %s", e.Status, e.Message)
}

// ClientError reports whether the directory refused the request itself (4xx)
// rather than failing.
func (e *RejectedError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RegisterResult struct {
	ID string `json:"id"`
}

type Directory interface {
	Register(ctx context.Context, in RegisterInput) (RegisterResult, error)
	RequestPasswordReset(ctx context.Context, email, resetLink string) error
	ConfirmPasswordReset(ctx context.Context, email, newPassword string) error
}

type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	var out RegisterResult
	if err := c.post(ctx, "/api/users/register", in, &out); err != nil {
		return RegisterResult{}, err
	}
	return out, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email, resetLink string) error {
	body := map[string]string{"email": email, "resetLink": resetLink}
	return c.post(ctx, "/api/users/reset-password", body, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, email, newPassword string) error {
	body := map[string]string{"email": email, "newPassword": newPassword}
	return c.post(ctx, "/api/users/reset-password/confirm", body, nil)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode directory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("X-API-Secret", c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return &RejectedError{Status: resp.StatusCode, Message: body.Error}
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

// Disabled stands in when no directory is configured.
type Disabled struct{}

var errNotConfigured = fmt.Errorf("%w: not configured", ErrUnavailable)

func (Disabled) Register(context.Context, RegisterInput) (RegisterResult, error) {
	return RegisterResult{}, errNotConfigured
}

func (Disabled) RequestPasswordReset(context.Context, string, string) error {
	return errNotConfigured
}

func (Disabled) ConfirmPasswordReset(context.Context, string, string) error {
	return errNotConfigured
}
