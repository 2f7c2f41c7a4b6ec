package webhook_test

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/webhook"
)

func TestCardLinkAdapter_VerifyAndParse(t *testing.T) {
	t.Parallel()

	const secret = "whsec_cardlink"
	adapter := webhook.NewCardLinkAdapter("cardlink", secret)

	subID := uuid.New()
	orderID := uuid.New()
	userID := uuid.New()

	body := []byte(`{
		"id": "evt_abc123",
		"type": "payment.succeeded",
		"created_at": "2026-01-15T10:30:00Z",
		"data": {
			"subscription_id": "sub_prov_1",
			"customer_id": "cus_prov_1",
			"status": "active",
			"amount": 2900,
			"currency": "USD",
			"metadata": {
				"subscription_id": "` + subID.String() + `",
				"order_id": "` + orderID.String() + `",
				"user_id": "` + userID.String() + `"
			}
		}
	}`)

	sign := func(payload []byte) (string, string) {
		return webhook.SignHMACPayload(secret, payload, time.Now())
	}

	t.Run("valid request normalized", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/webhooks/cardlink", bytes.NewReader(body))
		sig, ts := sign(body)
		req.Header.Set("X-CardLink-Signature", sig)
		req.Header.Set("X-CardLink-Timestamp", ts)

		event, err := adapter.VerifyAndParse(req)
		require.NoError(t, err)

		assert.Equal(t, "cardlink", event.ProviderSlug)
		assert.Equal(t, "evt_abc123", event.EventID)
		assert.Equal(t, webhook.EventPaymentSucceeded, event.Type)
		assert.Equal(t, "payment.succeeded", event.ProviderEvent)
		assert.Equal(t, "sub_prov_1", event.ProviderSubscriptionID)
		assert.Equal(t, "cus_prov_1", event.ProviderCustomerID)
		assert.Equal(t, "active", event.ProviderStatus)
		assert.Equal(t, subID, event.SubscriptionID)
		assert.Equal(t, orderID, event.OrderID)
		assert.Equal(t, userID, event.UserID)
		require.NotNil(t, event.Amount)
		assert.Equal(t, int64(2900), event.Amount.Amount)
		assert.Equal(t, "USD", event.Amount.Currency)
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("POST", "/webhooks/cardlink", bytes.NewReader(body))
		sig, ts := webhook.SignHMACPayload("wrong-secret", body, time.Now())
		req.Header.Set("X-CardLink-Signature", sig)
		req.Header.Set("X-CardLink-Timestamp", ts)

		_, err := adapter.VerifyAndParse(req)
		require.ErrorIs(t, err, webhook.ErrInvalidSignature)
	})

	t.Run("unmapped event type ignored", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"id":"evt_x","type":"customer.updated","created_at":"2026-01-15T10:30:00Z","data":{}}`)
		req := httptest.NewRequest("POST", "/webhooks/cardlink", bytes.NewReader(payload))
		sig, ts := sign(payload)
		req.Header.Set("X-CardLink-Signature", sig)
		req.Header.Set("X-CardLink-Timestamp", ts)

		_, err := adapter.VerifyAndParse(req)
		require.ErrorIs(t, err, webhook.ErrEventIgnored)
	})

	t.Run("malformed metadata is dropped not fatal", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{
			"id": "evt_meta",
			"type": "subscription.updated",
			"created_at": "2026-01-15T10:30:00Z",
			"data": {"metadata": {"subscription_id": "not-a-uuid"}}
		}`)
		req := httptest.NewRequest("POST", "/webhooks/cardlink", bytes.NewReader(payload))
		sig, ts := sign(payload)
		req.Header.Set("X-CardLink-Signature", sig)
		req.Header.Set("X-CardLink-Timestamp", ts)

		event, err := adapter.VerifyAndParse(req)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, event.SubscriptionID)
	})

	t.Run("missing event id rejected", func(t *testing.T) {
		t.Parallel()

		payload := []byte(`{"type":"payment.succeeded","created_at":"2026-01-15T10:30:00Z","data":{}}`)
		req := httptest.NewRequest("POST", "/webhooks/cardlink", bytes.NewReader(payload))
		sig, ts := sign(payload)
		req.Header.Set("X-CardLink-Signature", sig)
		req.Header.Set("X-CardLink-Timestamp", ts)

		_, err := adapter.VerifyAndParse(req)
		require.ErrorIs(t, err, webhook.ErrInvalidPayload)
	})
}
