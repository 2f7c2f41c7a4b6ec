// Package pg is the PostgreSQL persistence layer for the billing engines.
//
// It bundles connection pooling, goose schema migrations and health checks
// around the pgx/v5 driver, plus durable implementations of the engine store
// interfaces: SubscriptionStore, OrderStore and DiscountStore. The in-memory
// stores in the engine packages cover tests and single-instance use; this
// package is what a multi-instance deployment plugs in instead.
//
// # Bootstrap
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		log.Fatal(err)
//	}
//
//	subs := pg.NewSubscriptionStore(pool)
//	orders := pg.NewOrderStore(pool)
//	discounts := pg.NewDiscountStore(pool)
//
// Configuration comes from environment variables via github.com/caarlos0/env;
// see the Config field tags for names and defaults.
//
// # Error handling
//
// Store methods translate pgx.ErrNoRows into the engines' own not-found
// sentinels (subscription.ErrSubscriptionNotFound, order.ErrOrderNotFound,
// discount.ErrCodeNotFound). Helpers such as [IsDuplicateKeyError] and
// [IsForeignKeyViolationError] classify constraint violations for callers
// that need them.
package pg
