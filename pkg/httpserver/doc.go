// Package httpserver runs the operations HTTP surface of a process:
// liveness, readiness and prometheus metrics.
//
// Server owns the listener and shuts down gracefully when the context passed
// to Run ends. Routes builds a chi router with the standard endpoints.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	handler := httpserver.Routes(registry, log,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)},
//	)
//	g.Go(func() error { return srv.Run(ctx, handler) })
package httpserver
