package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ASAP-Digest/ASAP-Digest-sub012/internal/config"
	apperrors "github.com/ASAP-Digest/ASAP-Digest-sub012/internal/pkg/errors"
)

// SyncSecretHeader authenticates server-to-server sync pushes on both sides.
const SyncSecretHeader = "X-WP-Sync-Secret"

// maxPushAttempts bounds the retry loop (delays 1s, 2s between attempts).
const maxPushAttempts = 3

// ProfileSnapshot is the profile payload exchanged on push sync.
type ProfileSnapshot struct {
	WPUserID    int64    `json:"wp_user_id" binding:"required"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// Notifier pushes profile snapshots to the content backend so directory data
// stays warm on both sides. Pushes are best-effort: they retry with
// exponential backoff but never roll back or block the triggering write.
type Notifier struct {
	endpoint   string
	syncSecret string
	httpClient *http.Client
}

// NewNotifier creates a push-sync notifier for the content backend.
func NewNotifier(cfg config.WordPressConfig) (*Notifier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("WordPress API base URL is required")
	}
	if cfg.SyncSecret == "" {
		return nil, fmt.Errorf("WordPress sync secret is required")
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		endpoint:   baseURL + "/asap/v1/sync",
		syncSecret: cfg.SyncSecret,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// NotifySyncUpdate delivers a profile snapshot, retrying on transient
// failures with delays 2^(attempt-1) seconds, at most maxPushAttempts
// attempts. After exhausting retries it returns ErrSyncFailed.
func (n *Notifier) NotifySyncUpdate(ctx context.Context, snapshot ProfileSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode sync snapshot: %w", err)
	}

	operation := func() (struct{}, error) {
		return struct{}{}, n.push(ctx, body)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 1 * time.Second
	expBackoff.RandomizationFactor = 0
	expBackoff.Multiplier = 2

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxPushAttempts),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Printf("[Notifier] Повтор push-синхронизации wp_user_id=%d через %v: %v", snapshot.WPUserID, delay, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: push sync for wp_user_id=%d: %v", apperrors.ErrSyncFailed, snapshot.WPUserID, err)
	}
	return nil
}

// NotifyAsync spawns the push as a fire-and-forget task decoupled from the
// caller's request lifecycle. The returned channel receives the terminal
// result (nil or ErrSyncFailed) and is buffered so nobody has to read it.
func (n *Notifier) NotifyAsync(snapshot ProfileSnapshot) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		// Собственный контекст: завершение исходного запроса не отменяет push
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		err := n.NotifySyncUpdate(ctx, snapshot)
		if err != nil {
			log.Printf("[Notifier] Push-синхронизация wp_user_id=%d не доставлена: %v", snapshot.WPUserID, err)
		}
		errCh <- err
	}()
	return errCh
}

func (n *Notifier) push(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create sync push request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SyncSecretHeader, n.syncSecret)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sync push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Неверный секрет или payload — повторять бессмысленно
		return backoff.Permanent(fmt.Errorf("sync push rejected: status=%d", resp.StatusCode))
	}
	return fmt.Errorf("sync push status=%d", resp.StatusCode)
}
