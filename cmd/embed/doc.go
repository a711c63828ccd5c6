// Package main is an interactive harness for the embed protocol.
//
// It loads a host page, runs the loader against it and runs a widget
// controller in place of the iframe. The two halves talk through the
// server's websocket bridge, so every message crosses a real transport with
// the same origin rules a browser applies to postMessage.
//
// Usage:
//
//	./embed -server http://localhost:8000 -page http://localhost:8000/demo/ -control-token demo-control-token
//
// Commands (stdin):
//
//	show | open | hide        loader display controls
//	chat | close              widget launcher click and collapse
//	apply <text>              replace the host headline
//	reset                     restore the original headline
//	rewrite [text]            queue a rewrite request in the conversation
//	size <width> <height>     report widget dimensions
//	status | html | quit
package main
