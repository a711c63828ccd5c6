// Package protocol defines the cross-frame message contract between the host
// page loader and the widget iframe.
//
// Every message is a JSON object carrying its own "type" tag. Both frames keep
// their own copy of any shared state (mode, headline text) and reconcile it
// only through these messages.
//
// Message Types (Widget → Loader):
//   - headlineTester:ready: handshake, carries token, site name and mode
//   - headlineTester:mode: current display mode
//   - headlineTester:dimensions: measured surface size
//   - headlineTester:updateHeadline: request a headline mutation
//   - headlineTester:requestDomContext: ask for a fresh headline context
//
// Message Types (Loader → Widget):
//   - headlineTester:show / headlineTester:hide: visibility requests
//   - headlineTester:domContext: headline context snapshot
//   - headlineTester:headlineUpdated: mutation acknowledgement
//
// Example Usage:
//
//	data, err := protocol.Encode(protocol.Show{Open: true})
//	msg, err := protocol.Decode(data)
package protocol
