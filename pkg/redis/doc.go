// Package redis connects the billing service to Redis.
//
// The main consumer is webhook deduplication: webhook.NewRedisDedup shares
// the processed-event set across replicas, so a provider redelivery hitting
// a different instance is still recognized as a duplicate. Connect retries
// until Redis answers a ping or the connect timeout lapses, and Healthcheck
// plugs the same ping into the readiness probe:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	dedup := webhook.NewRedisDedup(client)
//	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, redis.Healthcheck(client)))
//
// Errors wrap the package sentinels (ErrNotReady, ErrInvalidConnectionURL)
// with errors.Join, so callers can branch with errors.Is.
package redis
