// Package middleware provides HTTP middleware for the Headline Tester API.
//
// Middleware stack includes:
//   - CORS: host pages on any allowed origin may read widget config and save experiments
//   - RateLimit: Per-IP token bucket rate limiting
//   - ControlToken: bearer control token extraction for the experiment store
//
// CORS Configuration:
//   - AllowOrigins: Permitted origin domains (WIDGET_ALLOWED_ORIGINS)
//   - AllowMethods: GET, POST and preflight
//   - ExposeHeaders: trace headers, so the widget can correlate saves
//   - MaxAge: Preflight cache duration
//
// Rate Limiting:
//   - Per-IP tracking with idle eviction
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//   - Global rate limiting option
//   - Rejections use the rate_limit:api error body
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Widget.AllowedOrigins)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
