package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/retry"
)

// CardLinkSlug is the registry slug of the CardLink backend.
const CardLinkSlug = "cardlink"

// CardLinkConfig holds CardLink credentials and registry placement.
type CardLinkConfig struct {
	APIKey                string `env:"CARDLINK_API_KEY,required"`
	WebhookSecret         string `env:"CARDLINK_WEBHOOK_SECRET,required"`
	BaseURL               string `env:"CARDLINK_BASE_URL" envDefault:"https://api.cardlink.io/v1"`
	EnabledForNewPayments bool   `env:"CARDLINK_ENABLED_FOR_NEW_PAYMENTS" envDefault:"true"`
	SortOrder             int    `env:"CARDLINK_SORT_ORDER" envDefault:"20"`
}

// CardLinkStrategy bills through CardLink's REST API. CardLink is an
// overlay-style processor: checkout creation returns a client token the
// frontend feeds into the payment overlay instead of a redirect URL. It is
// the only external backend here that can represent metered and tiered
// prices, and it accepts idempotency keys on usage reports.
type CardLinkStrategy struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     string
	descriptor Descriptor
	retryPol   retry.Policy
}

// NewCardLinkStrategy creates the CardLink backend from config.
func NewCardLinkStrategy(cfg CardLinkConfig) (*CardLinkStrategy, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("cardlink base URL is required")
	}

	return &CardLinkStrategy{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		secret:     cfg.WebhookSecret,
		descriptor: Descriptor{
			Slug:                  CardLinkSlug,
			DisplayName:           "CardLink",
			Active:                true,
			EnabledForNewPayments: cfg.EnabledForNewPayments,
			SortOrder:             cfg.SortOrder,
		},
		retryPol: retry.DefaultPolicy(),
	}, nil
}

func (s *CardLinkStrategy) Descriptor() Descriptor { return s.descriptor }

// WebhookSecret exposes the shared secret for the webhook adapter's HMAC
// verification.
func (s *CardLinkStrategy) WebhookSecret() string { return s.secret }

func (s *CardLinkStrategy) SupportedPlanTypes() []pricing.PriceType {
	return []pricing.PriceType{
		pricing.PriceTypeFlatRate,
		pricing.PriceTypePerUnit,
		pricing.PriceTypeTieredVolume,
		pricing.PriceTypeTieredGraduated,
	}
}

// SupportsSkippingTrial is false: CardLink applies trial configuration from
// the price itself and offers no per-checkout override.
func (s *CardLinkStrategy) SupportsSkippingTrial() bool { return false }
func (s *CardLinkStrategy) IsRedirectProvider() bool    { return false }
func (s *CardLinkStrategy) IsOverlayProvider() bool     { return true }

// CreateSubscriptionCheckout opens a checkout session and returns the
// overlay initialization payload.
func (s *CardLinkStrategy) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (*CheckoutResult, error) {
	if req.PlanPriceID == "" {
		return nil, errors.New("plan price ID is required")
	}

	body := map[string]any{
		"mode":     "subscription",
		"price_id": req.PlanPriceID,
		"metadata": map[string]string{
			"subscription_id": req.SubscriptionID.String(),
			"user_id":         req.UserID.String(),
		},
	}
	if req.Email != "" {
		body["customer_email"] = req.Email
	}
	if req.Discount != nil {
		body["discount_code"] = req.Discount.Code
	}

	var session struct {
		ID          string `json:"id"`
		ClientToken string `json:"client_token"`
		PublicKey   string `json:"public_key"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/checkout/sessions", body, "", &session); err != nil {
		return nil, err
	}
	if session.ClientToken == "" {
		return nil, fmt.Errorf("%w: empty client token", ErrNoCheckoutURL)
	}

	return &CheckoutResult{
		InlinePayload: map[string]string{
			"session_id":   session.ID,
			"client_token": session.ClientToken,
			"public_key":   session.PublicKey,
		},
	}, nil
}

func (s *CardLinkStrategy) CreateProductCheckout(ctx context.Context, req ProductCheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("at least one checkout item is required")
	}

	items := make([]map[string]any, 0, len(req.Items))
	for _, line := range req.Items {
		items = append(items, map[string]any{
			"price_id": line.ProductPriceID,
			"quantity": line.Quantity,
		})
	}
	body := map[string]any{
		"mode":  "payment",
		"items": items,
		"metadata": map[string]string{
			"order_id": req.OrderID.String(),
			"user_id":  req.UserID.String(),
		},
	}
	if req.Discount != nil {
		body["discount_code"] = req.Discount.Code
	}

	var session struct {
		ID          string `json:"id"`
		ClientToken string `json:"client_token"`
		PublicKey   string `json:"public_key"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/checkout/sessions", body, "", &session); err != nil {
		return nil, err
	}
	if session.ClientToken == "" {
		return nil, fmt.Errorf("%w: empty client token", ErrNoCheckoutURL)
	}

	return &CheckoutResult{
		InlinePayload: map[string]string{
			"session_id":   session.ID,
			"client_token": session.ClientToken,
			"public_key":   session.PublicKey,
		},
	}, nil
}

func (s *CardLinkStrategy) ChangePlan(ctx context.Context, req PlanChangeRequest) error {
	if !SupportsPlanType(s, req.NewPriceType) {
		return fmt.Errorf("%w: cardlink cannot bill %q", ErrUnsupportedPlanType, req.NewPriceType)
	}
	if req.Ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}

	body := map[string]any{
		"price_id": req.NewPlanPriceID,
		"prorate":  req.WithProration,
	}
	if req.WithProration {
		body["proration_amount"] = req.ProratedAmount.Amount
		body["currency"] = req.ProratedAmount.Currency
	}
	path := fmt.Sprintf("/subscriptions/%s/change-plan", req.Ref.ProviderSubscriptionID)
	return s.doJSON(ctx, http.MethodPost, path, body, "", nil)
}

func (s *CardLinkStrategy) CancelSubscription(ctx context.Context, ref SubscriptionRef) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	path := fmt.Sprintf("/subscriptions/%s/cancel", ref.ProviderSubscriptionID)
	return s.doJSON(ctx, http.MethodPost, path, map[string]any{"at_period_end": true}, "", nil)
}

func (s *CardLinkStrategy) DiscardCancellation(ctx context.Context, ref SubscriptionRef) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	path := fmt.Sprintf("/subscriptions/%s/reactivate", ref.ProviderSubscriptionID)
	return s.doJSON(ctx, http.MethodPost, path, map[string]any{}, "", nil)
}

func (s *CardLinkStrategy) ChangePaymentMethodLink(ctx context.Context, ref SubscriptionRef) (string, error) {
	if ref.ProviderSubscriptionID == "" {
		return "", errors.New("provider subscription ID is required")
	}

	var link struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/subscriptions/%s/payment-method-link", ref.ProviderSubscriptionID)
	if err := s.doJSON(ctx, http.MethodPost, path, map[string]any{}, "", &link); err != nil {
		return "", err
	}
	if link.URL == "" {
		return "", fmt.Errorf("%w: empty payment method link", ErrNoCheckoutURL)
	}
	return link.URL, nil
}

func (s *CardLinkStrategy) AddDiscountToSubscription(ctx context.Context, ref SubscriptionRef, discount DiscountSpec) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	path := fmt.Sprintf("/subscriptions/%s/discount", ref.ProviderSubscriptionID)
	return s.doJSON(ctx, http.MethodPost, path, map[string]any{
		"code":  discount.Code,
		"kind":  string(discount.Kind),
		"value": discount.Value,
	}, "", nil)
}

// ReportUsage submits a metered unit count. The idempotency key is passed
// through so a retried report is deduplicated on CardLink's side.
func (s *CardLinkStrategy) ReportUsage(ctx context.Context, report UsageReport) error {
	if report.Ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	if report.IdempotencyKey == "" {
		return errors.New("usage report idempotency key is required")
	}

	path := fmt.Sprintf("/subscriptions/%s/usage", report.Ref.ProviderSubscriptionID)
	return s.doJSON(ctx, http.MethodPost, path, map[string]any{
		"units": report.Units,
	}, report.IdempotencyKey, nil)
}

// doJSON performs an authenticated REST call with bounded retries on
// transient failures, decoding the response into out when provided.
func (s *CardLinkStrategy) doJSON(ctx context.Context, method, path string, body map[string]any, idempotencyKey string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal cardlink request: %w", err)
	}

	return retry.Do(ctx, s.retryPol, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.Transient{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode cardlink response: %w", err)
			}
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.Transient{Err: fmt.Errorf("cardlink responded %d", resp.StatusCode)}
		default:
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("%w: cardlink responded %d: %s", ErrProviderRejected, resp.StatusCode, detail)
		}
	})
}
