package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
)

type received struct {
	mu       sync.Mutex
	payloads []Payload
	headers  []http.Header
	bodies   [][]byte
}

func (r *received) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var p Payload
		_ = json.Unmarshal(body, &p)
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.headers = append(r.headers, req.Header.Clone())
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func todoCreated() eventsource.Event {
	return todos.TodoCreated{
		TodoID: "todo-1",
		Text:   "water plants",
		At:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func todoCompleted() eventsource.Event {
	return todos.TodoCompleted{TodoID: "todo-1", At: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

// publish hands events to a fresh publisher and waits for delivery.
func publish(t *testing.T, hooks []config.WebhookConfig, events ...eventsource.Event) {
	t.Helper()
	p := NewPublisher(hooks)
	for _, e := range events {
		if err := p.Handle(context.Background(), e); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_SendsPayload(t *testing.T) {
	var got received
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	publish(t, []config.WebhookConfig{{Name: "hook", URL: srv.URL}}, todoCreated())

	if got.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", got.count())
	}
	p := got.payloads[0]
	if p.Event != todos.EventTodoCreated {
		t.Errorf("event = %q", p.Event)
	}
	if p.AggregateID != "todo-1" {
		t.Errorf("aggregate id = %q", p.AggregateID)
	}
	if p.Delivery == "" {
		t.Error("delivery id should be set")
	}
	data, ok := p.Data.(map[string]any)
	if !ok || data["text"] != "water plants" {
		t.Errorf("data = %#v", p.Data)
	}

	h := got.headers[0]
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", h.Get("Content-Type"))
	}
	if h.Get(EventHeader) != todos.EventTodoCreated {
		t.Errorf("%s = %q", EventHeader, h.Get(EventHeader))
	}
	if h.Get(DeliveryHeader) != p.Delivery {
		t.Errorf("delivery header %q does not match payload %q", h.Get(DeliveryHeader), p.Delivery)
	}
	if h.Get(SignatureHeader) != "" {
		t.Error("unsigned hook should not send a signature")
	}
}

func TestPublisher_FiltersEvents(t *testing.T) {
	var got received
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	hooks := []config.WebhookConfig{{
		Name:   "completions",
		URL:    srv.URL,
		Events: []string{todos.EventTodoCompleted},
	}}
	publish(t, hooks, todoCreated(), todoCompleted())

	if got.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", got.count())
	}
	if got.payloads[0].Event != todos.EventTodoCompleted {
		t.Errorf("event = %q", got.payloads[0].Event)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		event    string
		want     bool
	}{
		{"no patterns selects all", nil, "note.created", true},
		{"exact", []string{"todo.created"}, "todo.created", true},
		{"exact miss", []string{"todo.created"}, "todo.deleted", false},
		{"prefix", []string{"todo.*"}, "todo.tag_added", true},
		{"prefix miss", []string{"todo.*"}, "note.created", false},
		{"star", []string{"*"}, "category.moved", true},
		{"any of several", []string{"note.*", "todo.completed"}, "todo.completed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.patterns, tt.event); got != tt.want {
				t.Errorf("Matches(%v, %q) = %v, want %v", tt.patterns, tt.event, got, tt.want)
			}
		})
	}
}

func TestPublisher_SignsPayload(t *testing.T) {
	var got received
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	publish(t, []config.WebhookConfig{{Name: "signed", URL: srv.URL, Secret: "s3cret"}}, todoCreated())

	if got.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", got.count())
	}
	sig := got.headers[0].Get(SignatureHeader)
	if sig == "" {
		t.Fatal("signature header missing")
	}
	if !VerifySignature(got.bodies[0], sig, "s3cret") {
		t.Errorf("signature %q does not verify", sig)
	}
	if VerifySignature(got.bodies[0], sig, "other") {
		t.Error("signature verified with the wrong secret")
	}
}

func TestPublisher_CustomHeaders(t *testing.T) {
	var got received
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	hooks := []config.WebhookConfig{{
		Name:    "headers",
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer abc", "X-Team": "ops"},
	}}
	publish(t, hooks, todoCreated())

	if got.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", got.count())
	}
	h := got.headers[0]
	if h.Get("Authorization") != "Bearer abc" || h.Get("X-Team") != "ops" {
		t.Errorf("headers = %v", h)
	}
}

func TestPublisher_DisabledHook(t *testing.T) {
	var got received
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	publish(t, []config.WebhookConfig{{Name: "off", URL: srv.URL, Disabled: true}}, todoCreated())

	if got.count() != 0 {
		t.Errorf("disabled hook received %d deliveries", got.count())
	}
}

func TestPublisher_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hooks := []config.WebhookConfig{{
		Name:       "flaky",
		URL:        srv.URL,
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	}}
	publish(t, hooks, todoCreated())

	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestPublisher_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hooks := []config.WebhookConfig{{
		Name:       "strict",
		URL:        srv.URL,
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	}}
	publish(t, hooks, todoCreated())

	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestPublisher_CloseWaitsForDelivery(t *testing.T) {
	var got received
	slow := got.handler(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		slow(w, r)
	}))
	defer srv.Close()

	p := NewPublisher([]config.WebhookConfig{{Name: "slow", URL: srv.URL}})
	if err := p.Handle(context.Background(), todoCreated()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got.count() != 1 {
		t.Errorf("deliveries after Close = %d, want 1", got.count())
	}

	// Events after Close are ignored.
	if err := p.Handle(context.Background(), todoCompleted()); err != nil {
		t.Fatalf("Handle after Close: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got.count() != 1 {
		t.Errorf("deliveries = %d, event after Close should be dropped", got.count())
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"todo.created"}`)
	sig := Sign(body, "key")

	if !VerifySignature(body, sig, "key") {
		t.Error("bare hex signature should verify")
	}
	if !VerifySignature(body, "sha256="+sig, "key") {
		t.Error("prefixed signature should verify")
	}
	if VerifySignature([]byte(`{"event":"todo.deleted"}`), sig, "key") {
		t.Error("tampered body should not verify")
	}
}

func TestDefaults(t *testing.T) {
	var zero config.WebhookConfig
	if timeout(&zero) != defaultTimeout {
		t.Errorf("timeout = %v", timeout(&zero))
	}
	if retryCount(&zero) != defaultRetryCount {
		t.Errorf("retries = %d", retryCount(&zero))
	}
	if retryDelay(&zero) != defaultRetryDelay {
		t.Errorf("delay = %v", retryDelay(&zero))
	}

	set := config.WebhookConfig{Timeout: 2 * time.Second, RetryCount: 1, RetryDelay: 5 * time.Millisecond}
	if timeout(&set) != 2*time.Second || retryCount(&set) != 1 || retryDelay(&set) != 5*time.Millisecond {
		t.Errorf("explicit values not honored: %v %d %v", timeout(&set), retryCount(&set), retryDelay(&set))
	}
}
