/*
Package tracing provides lightweight request tracing for the Headline Tester backend.

# Overview

A trace follows one headline save from the widget's persistence client through
the experiment store API, and one frame bridge session from dial to close.
It borrows OpenTelemetry vocabulary with a minimal implementation.

# Features

- Trace context propagation via HTTP headers
- Span creation with parent-child relationships
- Gin middleware for the store API
- Resty middleware for the persistence client
- Header injection for bridge dials
- Buffered span collection logged through zap

# Usage

	tracer := tracing.New("headlinetester", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	client := experiment.NewClient(experiment.ClientConfig{
		BaseURL:    url,
		Middleware: []resty.RequestMiddleware{tracing.RestyMiddleware()},
	})

	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

- X-Trace-ID: Unique identifier for entire request flow
- X-Span-ID: Identifier for current operation
*/
package tracing
