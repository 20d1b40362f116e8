// Package authclient verifies bearer tokens against the upstream auth
// service. This service never issues tokens; it only asks who a token
// belongs to.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"payledger/internal/common/middleware"
)

// ErrInvalidToken is returned when the auth service rejects a token. It is
// the middleware sentinel, so Identity answers 401 only for actual
// rejections; transport failures stay distinguishable.
var ErrInvalidToken = middleware.ErrInvalidToken

// Config holds auth client configuration.
type Config struct {
	BaseURL string        `envconfig:"AUTH_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"AUTH_API_KEY"`
	Timeout time.Duration `envconfig:"AUTH_TIMEOUT" default:"5s"`
}

// Client calls the auth service.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new auth client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Verify checks a bearer token and returns the caller's identity. Satisfies
// middleware.IdentityVerifier.
func (c *Client) Verify(ctx context.Context, token string) (userID, role string, err error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", "", fmt.Errorf("encoding verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/tokens/verify", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("building verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("calling auth service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", "", ErrInvalidToken
	default:
		return "", "", fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", "", fmt.Errorf("decoding verify response: %w", err)
	}
	if !vr.Valid || vr.UserID == "" {
		return "", "", ErrInvalidToken
	}

	return vr.UserID, vr.Role, nil
}
