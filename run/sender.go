package run

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/ratelimit"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/signature"
)

const maxResponseBody = 1024 // 1KB cap on response body reads

// Sender performs signed HTTP calls for call_webhook actions.
type Sender struct {
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewSender creates a sender with the given HTTP timeout. The limiter may
// be nil to disable per-destination rate limiting.
func NewSender(timeout time.Duration, limiter *ratelimit.Limiter) *Sender {
	return &Sender{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// Call posts the event payload to the configured URL, signed with the
// per-destination secret. The returned bool reports whether a failure is
// transient (retry may succeed).
func (s *Sender) Call(ctx context.Context, p rule.CallWebhookParams, evt event.DomainEvent) (bool, error) {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	if s.limiter != nil {
		if waitErr := s.limiter.Wait(ctx, p.URL, p.RateLimit); waitErr != nil {
			return true, fmt.Errorf("rate limit wait: %w", waitErr)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	// Standard headers.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Ripple/1.0")
	req.Header.Set("X-Ripple-Event-Type", evt.Type)
	req.Header.Set("X-Ripple-Org-ID", evt.OrgID)

	// HMAC signature.
	ts := time.Now().Unix()
	req.Header.Set("X-Ripple-Signature", signature.Sign(body, p.Secret, ts))
	req.Header.Set("X-Ripple-Timestamp", strconv.FormatInt(ts, 10))

	// Custom destination headers.
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req) //nolint:gosec // URL is a user-configured webhook destination.
	if err != nil {
		// Network errors and timeouts may self-correct.
		return true, fmt.Errorf("post %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps an HTTP status to (transient, error).
//
// Decision matrix:
//   - 2xx → success
//   - 429 → transient (rate limited)
//   - 500–599 → transient
//   - 400–499 (except 429) → permanent (client error won't self-correct)
func classifyStatus(code int) (bool, error) {
	switch {
	case code >= 200 && code < 300:
		return false, nil
	case code == http.StatusTooManyRequests:
		return true, fmt.Errorf("destination rate limited (status %d)", code)
	case code >= 500:
		return true, fmt.Errorf("destination error (status %d)", code)
	default:
		return false, fmt.Errorf("destination rejected call (status %d)", code)
	}
}
