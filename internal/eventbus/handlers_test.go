package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/types"
)

var sampleEvent = &Event{
	Type:    EventEscalationRaised,
	Scope:   types.Scope{TenantID: "acme", ProgramID: "s4-wave1"},
	PlanID:  "plan-1",
	Subject: "inc-1",
	At:      time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	Data:    map[string]any{"level": 2},
}

func TestWebhookDeliversSignedJSON(t *testing.T) {
	secret := []byte("s3cret")
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "escalation.raised", r.Header.Get("X-Cutover-Event"))
		assert.True(t, VerifySignature(body, r.Header.Get(SignatureHeader), secret))
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhookHandler(WebhookConfig{URL: srv.URL, Secret: secret})
	require.NoError(t, h.Handle(context.Background(), sampleEvent))
	assert.Equal(t, "inc-1", got.Subject)
	assert.Equal(t, "acme", got.Scope.TenantID)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewWebhookHandler(WebhookConfig{URL: srv.URL, MaxElapsed: 5 * time.Second})
	require.NoError(t, h.Handle(context.Background(), sampleEvent))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewWebhookHandler(WebhookConfig{URL: srv.URL})
	err := h.Handle(context.Background(), sampleEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWebhookFiltersEvents(t *testing.T) {
	h := NewWebhookHandler(WebhookConfig{URL: "http://example.invalid", Events: []EventType{EventIncidentRaised}})
	assert.Equal(t, []EventType{EventIncidentRaised}, h.Handles())
	assert.Equal(t, AllEvents(), NewWebhookHandler(WebhookConfig{URL: "http://example.invalid"}).Handles())
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &LogHandler{Log: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	require.NoError(t, h.Handle(context.Background(), sampleEvent))
	out := buf.String()
	assert.Contains(t, out, "event=escalation.raised")
	assert.Contains(t, out, "subject=inc-1")
	assert.Contains(t, out, "plan=plan-1")
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"type":"incident.raised"}`)
	sig := Sign(body, []byte("k"))
	assert.True(t, VerifySignature(body, sig, []byte("k")))
	assert.False(t, VerifySignature(body, sig, []byte("other")))
	assert.False(t, VerifySignature(body, "not-hex", []byte("k")))
}
