// Package webhook delivers committed events to HTTP endpoints.
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
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 3
	defaultRetryDelay = time.Second
	// drainTimeout bounds how long Close waits for deliveries in flight.
	drainTimeout = 8 * time.Second

	// SignatureHeader carries "sha256=<hex hmac>" when a secret is set.
	SignatureHeader = "X-Notebase-Signature"
	// EventHeader carries the event name.
	EventHeader = "X-Notebase-Event"
	// DeliveryHeader carries the delivery id, stable across retries.
	DeliveryHeader = "X-Notebase-Delivery"
)

func timeout(c *config.WebhookConfig) time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func retryCount(c *config.WebhookConfig) int {
	if c.RetryCount <= 0 {
		return defaultRetryCount
	}
	return c.RetryCount
}

func retryDelay(c *config.WebhookConfig) time.Duration {
	if c.RetryDelay <= 0 {
		return defaultRetryDelay
	}
	return c.RetryDelay
}

// Payload is the JSON body posted to every endpoint.
type Payload struct {
	Delivery    string    `json:"delivery"`
	Event       string    `json:"event"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	// Data is the event as it is stored in the journal.
	Data any `json:"data"`
}

// Publisher posts events to the configured endpoints. Its Handle method is
// an event bus subscriber; deliveries run in the background so a slow
// endpoint never holds up a command.
type Publisher struct {
	hooks  []config.WebhookConfig
	client *http.Client
	logger *slog.Logger
	newID  func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher creates a publisher for hooks. Disabled entries are skipped.
func NewPublisher(hooks []config.WebhookConfig, opts ...Option) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		client: &http.Client{},
		logger: slog.Default(),
		newID:  uuid.NewString,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, h := range hooks {
		if !h.Disabled {
			p.hooks = append(p.hooks, h)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "webhook")
	return p
}

// Handle queues event for every endpoint that subscribes to it. It never
// fails: the event is already committed.
func (p *Publisher) Handle(_ context.Context, event eventsource.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	for i := range p.hooks {
		wh := &p.hooks[i]
		if !Matches(wh.Events, event.EventName()) {
			continue
		}
		payload := Payload{
			Delivery:    p.newID(),
			Event:       event.EventName(),
			AggregateID: event.AggregateID().String(),
			OccurredAt:  event.OccurredAt().UTC(),
			Data:        event,
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.deliver(wh, payload)
		}()
	}
	return nil
}

// Close waits for queued deliveries, then abandons any still retrying.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.logger.Warn("abandoning webhook deliveries still in flight")
		p.cancel()
		<-done
	}
	p.cancel()
	return nil
}

// Matches reports whether name is selected by patterns. No patterns selects
// everything; "todo.*" selects every name starting with "todo.".
func Matches(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if pat == name || pat == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(pat, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// statusError is a non-2xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("endpoint returned %d: %s", e.code, e.body)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport failures and per-attempt timeouts.
	return true
}

func (p *Publisher) deliver(wh *config.WebhookConfig, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to encode webhook payload", "webhook", wh.Name, "event", payload.Event, "error", err)
		return
	}

	r := retry.New[int](retry.Config{
		MaxAttempts:   retryCount(wh) + 1,
		InitialDelay:  retryDelay(wh),
		MaxDelay:      8 * retryDelay(wh),
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    2.0,
		Jitter:        true,
		IsRetryable:   retryable,
	})
	attempt := 0
	code, err := r.Do(p.ctx, func(ctx context.Context) (int, error) {
		attempt++
		code, err := p.send(ctx, wh, payload, body)
		if err != nil {
			p.logger.Debug("webhook attempt failed", "webhook", wh.Name, "attempt", attempt, "error", err)
		}
		return code, err
	})
	if err != nil {
		p.logger.Warn("webhook delivery failed",
			"webhook", wh.Name,
			"event", payload.Event,
			"delivery", payload.Delivery,
			"attempts", attempt,
			"error", err)
		return
	}
	p.logger.Debug("webhook delivered", "webhook", wh.Name, "event", payload.Event, "status", code)
}

func (p *Publisher) send(ctx context.Context, wh *config.WebhookConfig, payload Payload, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout(wh))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "notebase-webhook/1")
	req.Header.Set(EventHeader, payload.Event)
	req.Header.Set(DeliveryHeader, payload.Delivery)
	for k, v := range wh.Headers {
		req.Header.Set(k, v)
	}
	if wh.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, wh.Secret))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a SignatureHeader value. Receivers can use it.
func VerifySignature(body []byte, signature, secret string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
