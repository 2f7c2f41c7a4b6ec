package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/pricing"
)

const (
	cardLinkSignatureHeader = "X-CardLink-Signature"
	cardLinkTimestampHeader = "X-CardLink-Timestamp"

	maxWebhookBodySize = 1 << 20 // 1 MiB, far above any real provider payload
)

// CardLinkAdapter verifies CardLink's HMAC-signed webhooks and normalizes
// their payloads.
type CardLinkAdapter struct {
	slug   string
	secret string
	maxAge time.Duration
}

// NewCardLinkAdapter creates an adapter bound to the shared webhook secret
// configured for the CardLink strategy.
func NewCardLinkAdapter(slug, secret string) *CardLinkAdapter {
	return &CardLinkAdapter{slug: slug, secret: secret, maxAge: DefaultSignatureMaxAge}
}

func (a *CardLinkAdapter) Slug() string { return a.slug }

type cardLinkPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		SubscriptionID string            `json:"subscription_id"`
		CustomerID     string            `json:"customer_id"`
		Status         string            `json:"status"`
		Amount         *int64            `json:"amount"`
		Currency       string            `json:"currency"`
		Metadata       map[string]string `json:"metadata"`
	} `json:"data"`
}

func (a *CardLinkAdapter) VerifyAndParse(r *http.Request) (*Event, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := VerifyHMACSignature(
		a.secret,
		body,
		r.Header.Get(cardLinkSignatureHeader),
		r.Header.Get(cardLinkTimestampHeader),
		a.maxAge,
	); err != nil {
		return nil, err
	}

	var payload cardLinkPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrInvalidPayload)
	}

	eventType, ok := mapCardLinkEventType(payload.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEventIgnored, payload.Type)
	}

	event := &Event{
		ProviderSlug:           a.slug,
		EventID:                payload.ID,
		Type:                   eventType,
		ProviderEvent:          payload.Type,
		OccurredAt:             payload.CreatedAt,
		ProviderSubscriptionID: payload.Data.SubscriptionID,
		ProviderCustomerID:     payload.Data.CustomerID,
		ProviderStatus:         payload.Data.Status,
	}

	if payload.Data.Amount != nil {
		event.Amount = &pricing.Money{Amount: *payload.Data.Amount, Currency: payload.Data.Currency}
	}

	// Checkout metadata carries our entity IDs back; malformed values are
	// dropped rather than failing the whole event.
	if id, err := uuid.Parse(payload.Data.Metadata["subscription_id"]); err == nil {
		event.SubscriptionID = id
	}
	if id, err := uuid.Parse(payload.Data.Metadata["order_id"]); err == nil {
		event.OrderID = id
	}
	if id, err := uuid.Parse(payload.Data.Metadata["user_id"]); err == nil {
		event.UserID = id
	}

	return event, nil
}

func mapCardLinkEventType(providerType string) (EventType, bool) {
	switch providerType {
	case "payment.succeeded":
		return EventPaymentSucceeded, true
	case "payment.failed":
		return EventPaymentFailed, true
	case "subscription.updated":
		return EventSubscriptionUpdated, true
	case "subscription.canceled":
		return EventSubscriptionCanceled, true
	case "dispute.opened":
		return EventDisputeOpened, true
	case "refund.issued":
		return EventRefundIssued, true
	case "identity.verified":
		return EventIdentityVerified, true
	default:
		return "", false
	}
}
