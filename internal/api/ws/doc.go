// Package ws provides the websocket frame bridge.
//
// A host page and its widget iframe that cannot share a browser window talk
// through a Hub instead of window.postMessage. Each joins a session as one
// role; the hub relays protocol messages between the two with the same
// delivery rules postMessage applies.
//
// Features:
//   - Sessions created on demand, or handed out by CreateSession
//   - A reconnecting window replaces its earlier connection
//   - Sender origin and window source stamped on every relayed frame
//   - Target origin mismatches dropped silently
//   - Read limits, ping keepalive and write deadlines per connection
//   - Prometheus connection gauges and relayed/dropped counters
//
// Routes:
//   - POST /bridge/sessions: returns {"session", "host", "frame"}
//   - GET /bridge/:session/:role?origin=<window origin>: websocket upgrade
//
// Example Usage:
//
//	hub := ws.NewHub(ws.Options{Metrics: metrics, Logger: logger})
//	router.POST("/bridge/sessions", hub.CreateSession)
//	router.GET("/bridge/:session/:role", hub.HandleConnection)
package ws
