/*
Package monitoring provides Prometheus metrics for the route proxy.

# Overview

Metrics live on a private registry per Metrics value. They cover HTTP
traffic, payload rewrites by type and outcome, and every reference the
rewriters route or skip. *Metrics implements rewrite.Observer, so handing it
to the engine is enough to count references.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	engine := rewrite.New(rewrite.WithObserver(metrics))

	timer := monitoring.NewTimer(metrics, route.HTML)
	out, err := engine.HTML(body, page)
	timer.Stop(monitoring.StatusOK, len(body), len(out))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
