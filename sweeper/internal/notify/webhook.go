package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when the
// webhook has a secret.
const SignatureHeader = "X-Feedsweep-Signature"

// Webhook POSTs each notification as JSON, retrying with backoff.
type Webhook struct {
	url    string
	secret []byte
	client *retryablehttp.Client
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.client.RetryMax = n }
}

// WithWebhookSecret signs every body with HMAC-SHA256.
func WithWebhookSecret(secret []byte) WebhookOption {
	return func(w *Webhook) { w.secret = secret }
}

// WithWebhookLogger routes retry logs through l.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.client.Logger = l }
}

// WithWebhookBackoff bounds the retry wait (tests use tiny values).
func WithWebhookBackoff(min, max time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.client.RetryWaitMin = min
		w.client.RetryWaitMax = max
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = slog.Default()

	w := &Webhook{url: url, client: c}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Notify(ctx context.Context, n message.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Close() error {
	w.client.HTTPClient.CloseIdleConnections()
	return nil
}

// Sign returns the SignatureHeader value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
