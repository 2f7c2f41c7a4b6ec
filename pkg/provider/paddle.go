package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/billforge/billforge/pkg/pricing"
	"github.com/billforge/billforge/pkg/retry"
)

// PaddleSlug is the registry slug of the Paddle backend.
const PaddleSlug = "paddle"

const (
	paddleAPIBaseURL        = "https://api.paddle.com"
	paddleSandboxAPIBaseURL = "https://sandbox-api.paddle.com"
)

// PaddleConfig holds Paddle credentials and registry placement. Credentials
// are read at strategy construction time and never logged.
type PaddleConfig struct {
	APIKey                string `env:"PADDLE_API_KEY,required"`
	WebhookSecret         string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment           string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	EnabledForNewPayments bool   `env:"PADDLE_ENABLED_FOR_NEW_PAYMENTS" envDefault:"true"`
	SortOrder             int    `env:"PADDLE_SORT_ORDER" envDefault:"10"`
}

// PaddleStrategy bills through Paddle's hosted checkout (redirect-style).
// Checkout and customer portal links go through the official SDK; the
// subscription lifecycle endpoints are called directly against the REST API.
type PaddleStrategy struct {
	client     *paddle.SDK
	verifier   *paddle.WebhookVerifier
	httpClient *http.Client
	baseURL    string
	apiKey     string
	descriptor Descriptor
	retryPol   retry.Policy
}

// NewPaddleStrategy creates the Paddle backend from config.
func NewPaddleStrategy(cfg PaddleConfig) (*PaddleStrategy, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client  *paddle.SDK
		baseURL string
		err     error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
		baseURL = paddleSandboxAPIBaseURL
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
		baseURL = paddleAPIBaseURL
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleStrategy{
		client:     client,
		verifier:   paddle.NewWebhookVerifier(cfg.WebhookSecret),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		descriptor: Descriptor{
			Slug:                  PaddleSlug,
			DisplayName:           "Paddle",
			Active:                true,
			EnabledForNewPayments: cfg.EnabledForNewPayments,
			SortOrder:             cfg.SortOrder,
		},
		retryPol: retry.DefaultPolicy(),
	}, nil
}

func (s *PaddleStrategy) Descriptor() Descriptor { return s.descriptor }

// SupportedPlanTypes is flat-rate only: Paddle prices are catalog items with
// fixed recurring amounts, metered billing is not representable here.
func (s *PaddleStrategy) SupportedPlanTypes() []pricing.PriceType {
	return []pricing.PriceType{pricing.PriceTypeFlatRate}
}

func (s *PaddleStrategy) SupportsSkippingTrial() bool { return true }
func (s *PaddleStrategy) IsRedirectProvider() bool    { return true }
func (s *PaddleStrategy) IsOverlayProvider() bool     { return false }

// WebhookVerifier exposes the SDK verifier for the webhook adapter.
func (s *PaddleStrategy) WebhookVerifier() *paddle.WebhookVerifier { return s.verifier }

// CreateSubscriptionCheckout creates a Paddle transaction for the plan's
// price and returns its hosted checkout URL. The subscription and user IDs
// travel in custom data so webhooks can be correlated back.
func (s *PaddleStrategy) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (*CheckoutResult, error) {
	if req.PlanPriceID == "" {
		return nil, errors.New("plan price ID is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PlanPriceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"subscription_id": req.SubscriptionID.String(),
			"user_id":         req.UserID.String(),
		},
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}
	if req.SkipTrial {
		txReq.CustomData["skip_trial"] = "true"
	}
	if req.Discount != nil {
		txReq.CustomData["discount_code"] = req.Discount.Code
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := s.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutResult{RedirectURL: *tx.Checkout.URL}, nil
}

// CreateProductCheckout builds a one-time purchase transaction from catalog
// items.
func (s *PaddleStrategy) CreateProductCheckout(ctx context.Context, req ProductCheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("at least one checkout item is required")
	}

	items := make([]paddle.CreateTransactionItems, 0, len(req.Items))
	for _, line := range req.Items {
		item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
			PriceID:  line.ProductPriceID,
			Quantity: line.Quantity,
		})
		items = append(items, *item)
	}

	txReq := &paddle.CreateTransactionRequest{
		Items: items,
		CustomData: paddle.CustomData{
			"order_id": req.OrderID.String(),
			"user_id":  req.UserID.String(),
		},
	}
	if req.Discount != nil {
		txReq.CustomData["discount_code"] = req.Discount.Code
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := s.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutResult{RedirectURL: *tx.Checkout.URL}, nil
}

// ChangePlan swaps the subscription's single item for the new plan's price.
func (s *PaddleStrategy) ChangePlan(ctx context.Context, req PlanChangeRequest) error {
	if !SupportsPlanType(s, req.NewPriceType) {
		return fmt.Errorf("%w: paddle cannot bill %q", ErrUnsupportedPlanType, req.NewPriceType)
	}
	if req.Ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}

	prorationMode := "do_not_bill"
	if req.WithProration {
		prorationMode = "prorated_immediately"
	}
	body := map[string]any{
		"items": []map[string]any{
			{"price_id": req.NewPlanPriceID, "quantity": 1},
		},
		"proration_billing_mode": prorationMode,
	}
	return s.patchSubscription(ctx, req.Ref.ProviderSubscriptionID, body)
}

// CancelSubscription schedules cancellation at period end. A conflict
// response means the subscription is already canceled, which counts as
// success to keep the call idempotent.
func (s *PaddleStrategy) CancelSubscription(ctx context.Context, ref SubscriptionRef) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	path := fmt.Sprintf("/subscriptions/%s/cancel", ref.ProviderSubscriptionID)
	body := map[string]any{"effective_from": "next_billing_period"}
	return s.doJSON(ctx, http.MethodPost, path, body, true)
}

// DiscardCancellation removes the scheduled change, resuming normal renewal.
func (s *PaddleStrategy) DiscardCancellation(ctx context.Context, ref SubscriptionRef) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	return s.patchSubscription(ctx, ref.ProviderSubscriptionID, map[string]any{
		"scheduled_change": nil,
	})
}

// ChangePaymentMethodLink returns the pre-authenticated portal URL for
// updating the subscription's payment method.
func (s *PaddleStrategy) ChangePaymentMethodLink(ctx context.Context, ref SubscriptionRef) (string, error) {
	if ref.ProviderCustomerID == "" {
		return "", errors.New("provider customer ID is required")
	}

	session, err := s.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID:      ref.ProviderCustomerID,
		SubscriptionIDs: []string{ref.ProviderSubscriptionID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}

	for _, subURL := range session.URLs.Subscriptions {
		if subURL.ID == ref.ProviderSubscriptionID && subURL.UpdateSubscriptionPaymentMethod != "" {
			return subURL.UpdateSubscriptionPaymentMethod, nil
		}
	}
	if session.URLs.General.Overview != "" {
		return session.URLs.General.Overview, nil
	}
	return "", errors.New("no portal URL returned from paddle")
}

// AddDiscountToSubscription attaches a Paddle discount starting next period.
func (s *PaddleStrategy) AddDiscountToSubscription(ctx context.Context, ref SubscriptionRef, discount DiscountSpec) error {
	if ref.ProviderSubscriptionID == "" {
		return errors.New("provider subscription ID is required")
	}
	return s.patchSubscription(ctx, ref.ProviderSubscriptionID, map[string]any{
		"discount": map[string]any{
			"id":             discount.Code,
			"effective_from": "next_billing_period",
		},
	})
}

// ReportUsage is not representable on Paddle's fixed catalog prices.
func (s *PaddleStrategy) ReportUsage(context.Context, UsageReport) error {
	return fmt.Errorf("%w: paddle does not support usage-based billing", ErrUnsupportedPlanType)
}

func (s *PaddleStrategy) patchSubscription(ctx context.Context, providerSubID string, body map[string]any) error {
	return s.doJSON(ctx, http.MethodPatch, "/subscriptions/"+providerSubID, body, false)
}

// doJSON performs an authenticated REST call with bounded retries on
// transient failures. When conflictOK is set, a 409 response is treated as
// already-done.
func (s *PaddleStrategy) doJSON(ctx context.Context, method, path string, body map[string]any, conflictOK bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal paddle request: %w", err)
	}

	return retry.Do(ctx, s.retryPol, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.Transient{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusConflict && conflictOK:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return retry.Transient{Err: fmt.Errorf("paddle responded %d", resp.StatusCode)}
		default:
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("%w: paddle responded %d: %s", ErrProviderRejected, resp.StatusCode, detail)
		}
	})
}
