// Package main is the entry point for the Headline Tester backend.
//
// The server stores headline experiments for embedded widgets and relays
// the cross-frame protocol between host pages and widget frames.
//
// Architecture:
//
//	Host page (loader) ⇄ /bridge ⇄ Widget frame (controller)
//	                                      → POST /api/widget/experiments
//
// The server provides:
//   - Experiment store API with control-token authorisation
//   - Public widget configuration lookups
//   - WebSocket bridge for the host and frame windows
//   - Demo host pages and Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode, SQLite store seeded from a file
//	./server -port 8000 -dsn file:headlines.db -widgets widgets.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
