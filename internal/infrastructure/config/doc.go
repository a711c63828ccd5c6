// Package config provides 12-factor configuration management for the Headline Tester backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, public URL, demo page directory)
//   - Store: experiment datastore DSN and widget seed file
//   - Widget: default embed token and origins allowed to call the API
//   - Bridge: websocket frame bridge limits
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, PUBLIC_URL, DEMO_DIR
//   - STORE_DSN, WIDGETS_FILE
//   - WIDGET_DEFAULT_TOKEN, WIDGET_ALLOWED_ORIGINS
//   - BRIDGE_ENABLED, BRIDGE_MAX_MESSAGE_BYTES, BRIDGE_PING_INTERVAL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST
package config
