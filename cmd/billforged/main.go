// Command billforged runs the billing service: the subscription and order
// engines behind the provider webhook endpoints, the scheduled billing jobs
// and the email notification consumer.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/billforge/billforge/pkg/config"
	"github.com/billforge/billforge/pkg/email"
	"github.com/billforge/billforge/pkg/events"
	"github.com/billforge/billforge/pkg/httpserver"
	"github.com/billforge/billforge/pkg/logger"
	"github.com/billforge/billforge/pkg/notifications"
	"github.com/billforge/billforge/pkg/order"
	"github.com/billforge/billforge/pkg/pg"
	"github.com/billforge/billforge/pkg/provider"
	"github.com/billforge/billforge/pkg/redis"
	"github.com/billforge/billforge/pkg/subscription"
	"github.com/billforge/billforge/pkg/tasks"
	"github.com/billforge/billforge/pkg/webhook"
)

type appConfig struct {
	ProductName      string `env:"PRODUCT_NAME" envDefault:"BillForge"`
	PlansPath        string `env:"PLANS_PATH" envDefault:"plans.yaml"`
	ExpiryReminder   int    `env:"EXPIRY_REMINDER_DAYS" envDefault:"3"`
	DevEmailDir      string `env:"DEV_EMAIL_DIR"`
	SupportPortalURL string `env:"SUPPORT_PORTAL_URL"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logCfg logger.Config
	mustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg, logger.WithAttr(slog.String("service", "billforged")))
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.ErrorContext(ctx, "service stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		appCfg      appConfig
		pgCfg       pg.Config
		redisCfg    redis.Config
		httpCfg     httpserver.Config
		emailCfg    email.Config
		paddleCfg   provider.PaddleConfig
		cardlinkCfg provider.CardLinkConfig
	)
	mustLoad(&appCfg)
	mustLoad(&pgCfg)
	mustLoad(&redisCfg)
	mustLoad(&httpCfg)
	mustLoad(&emailCfg)
	mustLoad(&paddleCfg)
	mustLoad(&cardlinkCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	paddleStrategy, err := provider.NewPaddleStrategy(paddleCfg)
	if err != nil {
		return err
	}
	cardlinkStrategy, err := provider.NewCardLinkStrategy(cardlinkCfg)
	if err != nil {
		return err
	}
	registry, err := provider.NewRegistry(paddleStrategy, cardlinkStrategy, provider.NewLocalStrategy())
	if err != nil {
		return err
	}

	bus := events.NewBus(64)
	defer bus.Close()

	subEngine, err := subscription.NewEngine(ctx,
		subscription.YAMLPlans{Path: appCfg.PlansPath},
		registry,
		pg.NewSubscriptionStore(pool),
		subscription.WithEventPublisher(bus),
		subscription.WithLogger(log),
	)
	if err != nil {
		return err
	}

	orderEngine := order.NewEngine(registry, pg.NewOrderStore(pool),
		order.WithEventPublisher(bus),
		order.WithLogger(log),
	)

	hooks := webhook.NewHandler(
		webhook.NewRedisDedup(redisClient),
		log,
		[]webhook.Adapter{
			webhook.NewPaddleAdapter(provider.PaddleSlug, paddleStrategy.WebhookVerifier()),
			webhook.NewCardLinkAdapter(provider.CardLinkSlug, cardlinkCfg.WebhookSecret),
		},
		[]webhook.Sink{subEngine, orderEngine},
	)

	runner := tasks.NewRunner(tasks.WithLogger(log))
	if err := runner.Add(tasks.LocalCleanupJob(subEngine)); err != nil {
		return err
	}
	if err := runner.Add(tasks.ExpiryReminderJob(subEngine, bus, appCfg.ExpiryReminder)); err != nil {
		return err
	}

	sender, err := buildSender(emailCfg, appCfg, log)
	if err != nil {
		return err
	}
	notifier := notifications.NewNotifier(sender, noDirectory{}, appCfg.ProductName,
		notifications.WithLogger(log),
		notifications.WithSupportURL(appCfg.SupportPortalURL),
	)

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))
	r.Mount("/webhooks", hooks.Routes())

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithShutdownTimeout(10*time.Second),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, r) })
	g.Go(func() error { return runner.Start(ctx) })
	g.Go(func() error {
		notifier.Run(ctx, bus.Subscribe(ctx))
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildSender(cfg email.Config, app appConfig, log *slog.Logger) (email.Sender, error) {
	if cfg.PostmarkServerToken != "" {
		return email.NewPostmarkSender(cfg)
	}
	return email.NewDevSender(app.DevEmailDir, log)
}

// noDirectory stands in until the host application supplies a real user
// lookup. Every event resolves to no recipient, so notifications are logged
// and skipped.
type noDirectory struct{}

func (noDirectory) EmailByUserID(context.Context, uuid.UUID) (string, error) {
	return "", notifications.ErrUserNotFound
}

func mustLoad[T any](v *T) {
	if err := config.Load(v); err != nil {
		slog.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}
}
