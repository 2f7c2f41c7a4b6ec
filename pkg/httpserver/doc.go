// Package httpserver runs the billing service's HTTP listener: the provider
// webhook endpoints and the health probes. Run blocks until its context is
// cancelled and then drains in-flight requests within the shutdown timeout,
// so webhook deliveries caught by a deploy finish instead of surfacing as
// provider-side delivery failures.
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
//	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
//	r.Mount("/webhooks", hooks.Routes())
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen failures wrap ErrStart and shutdown failures wrap ErrShutdown;
// distinguish them with errors.Is.
package httpserver
