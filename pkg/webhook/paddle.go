package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/google/uuid"
)

// PaddleAdapter verifies Paddle webhooks with the official SDK verifier and
// normalizes their payloads.
type PaddleAdapter struct {
	slug     string
	verifier *paddle.WebhookVerifier
}

// NewPaddleAdapter creates an adapter around the strategy's webhook
// verifier.
func NewPaddleAdapter(slug string, verifier *paddle.WebhookVerifier) *PaddleAdapter {
	return &PaddleAdapter{slug: slug, verifier: verifier}
}

func (a *PaddleAdapter) Slug() string { return a.slug }

type paddlePayload struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

func (a *PaddleAdapter) VerifyAndParse(r *http.Request) (*Event, error) {
	valid, err := a.verifier.Verify(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	// The verifier consumed the body; rewind for parsing
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload paddlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrInvalidPayload)
	}

	eventType, ok := mapPaddleEventType(payload.EventType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEventIgnored, payload.EventType)
	}

	event := &Event{
		ProviderSlug:  a.slug,
		EventID:       payload.EventID,
		Type:          eventType,
		ProviderEvent: payload.EventType,
		OccurredAt:    payload.OccurredAt,
	}

	if id, ok := payload.Data["id"].(string); ok {
		event.ProviderSubscriptionID = id
	}
	// Transactions reference their subscription separately
	if subID, ok := payload.Data["subscription_id"].(string); ok && subID != "" {
		event.ProviderSubscriptionID = subID
	}
	if customerID, ok := payload.Data["customer_id"].(string); ok {
		event.ProviderCustomerID = customerID
	}
	if status, ok := payload.Data["status"].(string); ok {
		event.ProviderStatus = status
	}

	if customData, ok := payload.Data["custom_data"].(map[string]any); ok {
		if raw, ok := customData["subscription_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				event.SubscriptionID = id
			}
		}
		if raw, ok := customData["order_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				event.OrderID = id
			}
		}
		if raw, ok := customData["user_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				event.UserID = id
			}
		}
	}

	return event, nil
}

func mapPaddleEventType(providerType string) (EventType, bool) {
	switch providerType {
	case "transaction.completed", "transaction.payment_succeeded":
		return EventPaymentSucceeded, true
	case "transaction.payment_failed":
		return EventPaymentFailed, true
	case "subscription.created", "subscription.activated", "subscription.updated",
		"subscription.resumed", "subscription.past_due":
		return EventSubscriptionUpdated, true
	case "subscription.canceled":
		return EventSubscriptionCanceled, true
	case "adjustment.created":
		return EventRefundIssued, true
	default:
		return "", false
	}
}
