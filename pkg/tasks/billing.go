package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/billforge/billforge/pkg/events"
	"github.com/billforge/billforge/pkg/subscription"
)

// SubscriptionSweeper is the slice of the subscription engine the
// reconciliation jobs need.
type SubscriptionSweeper interface {
	CleanupLocalSubscriptionStatuses(ctx context.Context) (int, error)
	GetExpiringIn(ctx context.Context, days int) ([]*subscription.Subscription, error)
}

// LocalCleanupJob flips expired locally managed subscriptions to inactive.
// The hourly cadence bounds how long an expired local subscription still
// reads as active; tighten the schedule if that window matters.
func LocalCleanupJob(engine SubscriptionSweeper) Job {
	return Job{
		Name:     "local-subscription-cleanup",
		Schedule: HourlyAt(0),
		Run: func(ctx context.Context) error {
			_, err := engine.CleanupLocalSubscriptionStatuses(ctx)
			return err
		},
	}
}

// ExpiryReminderJob publishes an expiring-soon event for every subscription
// ending within the window. The notification sender picks those up from the
// bus; the job itself mutates nothing.
func ExpiryReminderJob(engine SubscriptionSweeper, pub events.Publisher, withinDays int) Job {
	return Job{
		Name:     "subscription-expiry-reminder",
		Schedule: DailyAt(9, 0),
		Run: func(ctx context.Context) error {
			expiring, err := engine.GetExpiringIn(ctx, withinDays)
			if err != nil {
				return err
			}
			for _, sub := range expiring {
				endsAt := sub.CycleEndsAt
				if sub.LocalManaged && sub.EndsAt != nil {
					endsAt = *sub.EndsAt
				}
				pub.Publish(ctx, events.Event{
					Kind:           events.SubscriptionExpiringSoon,
					OccurredAt:     time.Now().UTC(),
					UserID:         sub.UserID,
					SubscriptionID: sub.ID,
					ProviderSlug:   sub.ProviderSlug,
					Meta: map[string]string{
						"plan":    sub.PlanID,
						"ends_at": endsAt.Format(time.RFC3339),
						"days":    fmt.Sprintf("%d", withinDays),
					},
				})
			}
			return nil
		},
	}
}
