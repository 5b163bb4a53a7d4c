package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/config"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// UserDetails is the minimal profile payload returned by the content backend.
type UserDetails struct {
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// Client talks server-to-server to the content backend (WordPress) REST API:
// sync-token validation and user profile details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a content backend API client. The request timeout comes
// from config (default 10s); a timeout maps to ErrUpstreamUnavailable, never
// to ErrTokenInvalid.
func NewClient(cfg config.WordPressConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("WordPress API base URL is required")
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// TokenPreview returns a safe token prefix for logging (never the full token).
func TokenPreview(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "..."
}

// VerifyToken submits a sync token to the validation endpoint and returns the
// asserted wp user id. A token must be submitted at most once: replay is
// rejected upstream, and callers must not retry a TokenInvalid result.
func (c *Client) VerifyToken(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("%w: empty sync token", apperrors.ErrTokenInvalid)
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return 0, fmt.Errorf("failed to encode token validation request: %w", err)
	}

	endpoint := c.baseURL + "/asap/v1/validate-sync-token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create token validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые ошибки и таймауты — недоступность upstream, флоу можно повторить
		return 0, fmt.Errorf("%w: token validation request failed: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("%w: token validation status=%d", apperrors.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 4xx: токен истек, использован или неверен — терминально
		return 0, fmt.Errorf("%w: token validation status=%d", apperrors.ErrTokenInvalid, resp.StatusCode)
	}

	var payload struct {
		Valid    bool  `json:"valid"`
		WPUserID int64 `json:"wp_user_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: failed to parse token validation response: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	if !payload.Valid || payload.WPUserID <= 0 {
		return 0, fmt.Errorf("%w: token rejected by content backend", apperrors.ErrTokenInvalid)
	}

	return payload.WPUserID, nil
}

// GetUserDetails fetches minimal profile details for a wp user id.
// Failures here never block provisioning: the caller falls back to
// deterministic placeholder values.
func (c *Client) GetUserDetails(ctx context.Context, wpUserID int64) (*UserDetails, error) {
	endpoint := fmt.Sprintf("%s/asap/v1/users/%s", c.baseURL, url.PathEscape(fmt.Sprintf("%d", wpUserID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user details request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user details request failed: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: wp user %d not found", apperrors.ErrNotFound, wpUserID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: user details status=%d", apperrors.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var details UserDetails
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8192)).Decode(&details); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user details response: %v", apperrors.ErrUpstreamUnavailable, err)
	}
	return &details, nil
}
