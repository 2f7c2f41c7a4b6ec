package webhook_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/webhook"
)

func TestMemoryDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dedup := webhook.NewMemoryDedup()

	seen, err := dedup.Seen(ctx, "cardlink", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, dedup.MarkProcessed(ctx, "cardlink", "evt_1", time.Minute))

	seen, err = dedup.Seen(ctx, "cardlink", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same event ID under a different provider is a different event.
	seen, err = dedup.Seen(ctx, "paddle", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	// Expired entries are forgotten.
	require.NoError(t, dedup.MarkProcessed(ctx, "cardlink", "evt_2", -time.Second))
	seen, err = dedup.Seen(ctx, "cardlink", "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func postCardLinkEvent(t *testing.T, h http.Handler, secret string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("POST", "/cardlink", bytes.NewReader(body))
	sig, ts := webhook.SignHMACPayload(secret, body, time.Now())
	req.Header.Set("X-CardLink-Signature", sig)
	req.Header.Set("X-CardLink-Timestamp", ts)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Serve(t *testing.T) {
	t.Parallel()

	const secret = "whsec_handler"
	body := []byte(`{"id":"evt_h1","type":"payment.succeeded","created_at":"2026-01-15T10:30:00Z","data":{"status":"active"}}`)

	newHandler := func(sink webhook.Sink) http.Handler {
		h := webhook.NewHandler(
			webhook.NewMemoryDedup(),
			nil,
			[]webhook.Adapter{webhook.NewCardLinkAdapter("cardlink", secret)},
			[]webhook.Sink{sink},
		)
		return h.Routes()
	}

	t.Run("unknown provider returns 404", func(t *testing.T) {
		t.Parallel()

		router := newHandler(webhook.SinkFunc(func(context.Context, webhook.Event) error { return nil }))
		req := httptest.NewRequest("POST", "/stripe", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid signature returns 400 without touching sinks", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		router := newHandler(webhook.SinkFunc(func(context.Context, webhook.Event) error {
			calls.Add(1)
			return nil
		}))

		req := httptest.NewRequest("POST", "/cardlink", bytes.NewReader(body))
		req.Header.Set("X-CardLink-Signature", "bogus")
		req.Header.Set("X-CardLink-Timestamp", "123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, calls.Load())
	})

	t.Run("valid event reaches sink once and duplicates are acknowledged", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		var got webhook.Event
		router := newHandler(webhook.SinkFunc(func(_ context.Context, event webhook.Event) error {
			calls.Add(1)
			got = event
			return nil
		}))

		rec := postCardLinkEvent(t, router, secret, body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, webhook.EventPaymentSucceeded, got.Type)
		assert.Equal(t, "evt_h1", got.EventID)

		// Redelivery of the same event is acknowledged but not reprocessed.
		rec = postCardLinkEvent(t, router, secret, body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("sink failure leaves event unmarked for redelivery", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		router := newHandler(webhook.SinkFunc(func(context.Context, webhook.Event) error {
			if calls.Add(1) == 1 {
				return errors.New("store temporarily unavailable")
			}
			return nil
		}))

		rec := postCardLinkEvent(t, router, secret, body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		// The provider redelivers; this time the sink succeeds.
		rec = postCardLinkEvent(t, router, secret, body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("unmapped event type is acknowledged", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		router := newHandler(webhook.SinkFunc(func(context.Context, webhook.Event) error {
			calls.Add(1)
			return nil
		}))

		ignored := []byte(`{"id":"evt_ig","type":"customer.updated","created_at":"2026-01-15T10:30:00Z","data":{}}`)
		rec := postCardLinkEvent(t, router, secret, ignored)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, calls.Load())
	})
}
