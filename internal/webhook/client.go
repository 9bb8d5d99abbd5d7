// Package webhook delivers signed job notifications.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/imageoptimizer/internal/config"
)

const (
	HeaderSignature = "X-ImageOptimizer-Signature"
	HeaderTimestamp = "X-ImageOptimizer-Timestamp"
	HeaderEvent     = "X-ImageOptimizer-Event"

	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"

	signaturePrefix = "sha256="
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// JobEvent is the body posted for job.completed and job.failed.
type JobEvent struct {
	JobID     string      `json:"job_id"`
	Status    string      `json:"status"`
	Operation string      `json:"operation"`
	Outputs   []EventFile `json:"outputs,omitempty"`
	Skipped   []int       `json:"skipped_ranges,omitempty"`
	Error     string      `json:"error,omitempty"`
	Finished  time.Time   `json:"finished_at"`
}

type EventFile struct {
	ObjectKey string `json:"object_key"`
	MIMEType  string `json:"mime_type"`
	Bytes     int    `json:"bytes"`
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

func NewClient(cfg config.WebhookConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(initialBackoff, cfg.MaxBackoff),
		now:            time.Now,
	}
}

// Send posts payload to endpoint, retrying transport errors and 5xx/429
// responses with exponential backoff. An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().UTC().Unix(), 10)
	signature := Sign(c.signingSecret, timestamp, body)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		retry, err := c.post(ctx, endpoint, event, timestamp, signature, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery to %s failed: %w", endpoint, lastErr)
}

func (c *Client) post(ctx context.Context, endpoint, event, timestamp, signature string, body []byte) (retry bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	}
}

// Sign computes the signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature header in constant time.
func Verify(secret, timestamp string, body []byte, signature string) error {
	if !hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
