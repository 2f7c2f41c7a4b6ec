// Package notifications turns billing domain events into customer emails.
//
// A Notifier subscribes to the events bus and sends renewal reminders,
// payment problem notices and order receipts through an email.Sender. It
// runs as an independent consumer so the billing engines never block on,
// or even know about, email delivery.
package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/email"
	"github.com/billforge/billforge/pkg/events"
)

// UserDirectory resolves a user ID to the email address notifications go to.
type UserDirectory interface {
	EmailByUserID(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier consumes billing events and delivers customer-facing emails.
type Notifier struct {
	sender      email.Sender
	users       UserDirectory
	log         *slog.Logger
	productName string
	supportURL  string
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used for delivery failures.
func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.log = log
		}
	}
}

// WithSupportURL sets the link included in payment problem emails.
func WithSupportURL(url string) Option {
	return func(n *Notifier) { n.supportURL = url }
}

// NewNotifier creates a Notifier. Sender, users and productName are required.
func NewNotifier(sender email.Sender, users UserDirectory, productName string, opts ...Option) *Notifier {
	if sender == nil {
		panic("notifications: sender is required")
	}
	if users == nil {
		panic("notifications: user directory is required")
	}
	if productName == "" {
		panic("notifications: product name is required")
	}

	n := &Notifier{
		sender:      sender,
		users:       users,
		log:         slog.Default(),
		productName: productName,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run consumes events from the subscriber until the context is cancelled or
// the subscription is closed. Delivery failures are logged, never fatal.
func (n *Notifier) Run(ctx context.Context, sub *events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := n.Handle(ctx, event); err != nil {
				n.log.ErrorContext(ctx, "notification delivery failed",
					slog.String("kind", string(event.Kind)),
					slog.String("user_id", event.UserID.String()),
					slog.Any("error", err),
				)
			}
		}
	}
}

// Handle sends the email for a single event. Events that don't map to a
// customer notification are ignored.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	var subject, tmpl, tag string

	switch event.Kind {
	case events.SubscriptionExpiringSoon:
		subject = fmt.Sprintf("Your %s subscription expires soon", n.productName)
		tmpl, tag = "expiring_soon", "expiring-soon"
	case events.SubscriptionPastDue:
		subject = fmt.Sprintf("Payment problem with your %s subscription", n.productName)
		tmpl, tag = "past_due", "past-due"
	case events.SubscriptionCanceled:
		subject = fmt.Sprintf("Your %s subscription was canceled", n.productName)
		tmpl, tag = "subscription_canceled", "canceled"
	case events.OrderCompleted:
		subject = fmt.Sprintf("Your %s receipt", n.productName)
		tmpl, tag = "order_receipt", "receipt"
	case events.OrderRefunded:
		subject = fmt.Sprintf("Your %s order was refunded", n.productName)
		tmpl, tag = "order_refunded", "refund"
	default:
		return nil
	}

	if event.UserID == uuid.Nil {
		return nil
	}

	sendTo, err := n.users.EmailByUserID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	data := templateData{
		ProductName: n.productName,
		PlanName:    event.Meta["plan"],
		EndsAt:      event.Meta["ends_at"],
		Days:        event.Meta["days"],
		Amount:      event.Meta["amount"],
		SupportURL:  n.supportURL,
	}
	if event.OrderID != uuid.Nil {
		data.OrderID = event.OrderID.String()
	}

	body, err := renderTemplate(tmpl, data)
	if err != nil {
		return err
	}

	if err := n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   sendTo,
		Subject:  subject,
		BodyHTML: body,
		Tag:      tag,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToDeliver, err)
	}
	return nil
}
