/*
Package monitoring provides Prometheus metrics for the Headline Tester backend.

# Overview

Every Metrics value owns a private registry, so servers and tests can create
as many as they like without colliding on the default registerer.

# Features

- HTTP request metrics (latency, throughput, size) labelled by route
- Service call timing for store operations
- Experiment upsert outcomes by action and error code
- Widget config lookups
- Frame bridge sessions, connections and relayed/dropped messages
- Uptime as a gauge function

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	svc := store.NewService(repo, store.Options{Observer: metrics})

	timer := monitoring.NewTimer(metrics, "store", "upsert")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
