package eventbus

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LogHandler traces every event at debug level.
// Priority 10 (runs first so the log shows the event even if delivery fails).
type LogHandler struct {
	Log *slog.Logger
}

func (h *LogHandler) ID() string           { return "log" }
func (h *LogHandler) Handles() []EventType { return AllEvents() }
func (h *LogHandler) Priority() int        { return 10 }

func (h *LogHandler) Handle(ctx context.Context, event *Event) error {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"event", event.Type, "subject", event.Subject, "scope", event.Scope.String()}
	if event.PlanID != "" {
		attrs = append(attrs, "plan", event.PlanID)
	}
	if event.Actor != "" {
		attrs = append(attrs, "actor", event.Actor)
	}
	log.DebugContext(ctx, "event published", attrs...)
	return nil
}

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a
// webhook secret is configured.
const SignatureHeader = "X-Cutover-Signature"

// WebhookConfig configures a WebhookHandler.
type WebhookConfig struct {
	URL    string
	Secret []byte
	// Events limits delivery; empty means every event type.
	Events []EventType
	// Timeout bounds one attempt (default 5s).
	Timeout time.Duration
	// MaxElapsed bounds all retries of one delivery (default 15s).
	MaxElapsed time.Duration
	Client     *http.Client
}

// WebhookHandler POSTs each event as JSON to a URL. 5xx responses and
// transport errors are retried with exponential backoff; 4xx responses are
// not.
// Priority 50.
type WebhookHandler struct {
	cfg WebhookConfig
}

// NewWebhookHandler creates a webhook handler, filling defaults.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if len(cfg.Events) == 0 {
		cfg.Events = AllEvents()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 15 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebhookHandler{cfg: cfg}
}

func (h *WebhookHandler) ID() string           { return "webhook" }
func (h *WebhookHandler) Handles() []EventType { return h.cfg.Events }
func (h *WebhookHandler) Priority() int        { return 50 }

func (h *WebhookHandler) Handle(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = h.cfg.MaxElapsed

	return backoff.Retry(func() error {
		return h.post(ctx, event.Type, body)
	}, backoff.WithContext(bo, ctx))
}

func (h *WebhookHandler) post(ctx context.Context, eventType EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("webhook: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cutover-Event", string(eventType))
	if len(h.cfg.Secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(body, h.cfg.Secret))
	}

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook: %s returned %d", h.cfg.URL, resp.StatusCode)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("webhook: %s returned %d", h.cfg.URL, resp.StatusCode))
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the signature of body under secret.
func VerifySignature(body []byte, sig string, secret []byte) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
