// Package locator finds the host page headline, remembers its original copy
// and rewrites its text on request.
package locator

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Locator is bound to one document for the life of the loader
type Locator struct {
	doc        *hostdoc.Document
	strategies []Strategy
	sink       logging.Sink

	node     *html.Node
	original *string
	selector string
	latest   *string
}

// New creates a locator. A nil strategy list uses DefaultStrategies.
func New(doc *hostdoc.Document, strategies []Strategy, sink logging.Sink) *Locator {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if sink == nil {
		sink = logging.NopSink{}
	}
	return &Locator{doc: doc, strategies: strategies, sink: sink}
}

// Locate returns the cached target while it is still attached, otherwise
// walks the strategies in order. The first successful lookup freezes the
// original text.
func (l *Locator) Locate() *html.Node {
	if l.node != nil && l.doc.Contains(l.node) {
		return l.node
	}
	l.node = nil

	for _, s := range l.strategies {
		n := s.Locate(l.doc)
		if n == nil {
			continue
		}
		l.node = n
		l.sink.Event("locator.found", zap.String("strategy", s.Name()))
		break
	}
	if l.node == nil {
		l.sink.Event("locator.missing")
		return nil
	}

	text := hostdoc.Text(l.node)
	if l.original == nil {
		l.original = &text
	}
	if l.selector == "" {
		l.selector = l.DeriveSelector(l.node)
	}
	l.latest = &text
	return l.node
}

// Original returns the frozen original text, if captured
func (l *Locator) Original() *string {
	return l.original
}

// Latest returns the text observed at the most recent lookup or mutation
func (l *Locator) Latest() *string {
	return l.latest
}

// DeriveSelector describes n for display and persistence. It is never used
// to find the node again.
func (l *Locator) DeriveSelector(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		if l.selector != "" {
			return l.selector
		}
		return DefaultSelector
	}
	if v, ok := hostdoc.Attr(n, MarkerAttr); ok && v != "" {
		return fmt.Sprintf(`[%s="%s"]`, MarkerAttr, v)
	}
	if id, ok := hostdoc.Attr(n, "id"); ok && id != "" {
		return "#" + CSSEscape(id)
	}
	if n.Data != "" {
		return strings.ToLower(n.Data)
	}
	if l.selector != "" {
		return l.selector
	}
	return DefaultSelector
}

// CSSEscape escapes an identifier for use in a selector. Anything outside
// [A-Za-z0-9_-] becomes a hex escape followed by a space.
func CSSEscape(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "\\%x ", r)
		}
	}
	return b.String()
}

// Mutate replaces the target's text verbatim and returns the resulting text
func (l *Locator) Mutate(n *html.Node, text string) string {
	hostdoc.SetText(n, text)
	next := hostdoc.Text(n)
	l.latest = &next
	return next
}

// Path returns the host page path
func (l *Locator) Path() string {
	if p := l.doc.URL().Path; p != "" {
		return p
	}
	return "/"
}

// Context describes the current headline state for the widget
func (l *Locator) Context() protocol.DomContext {
	path := protocol.String(l.Path())
	pageURL := protocol.String(l.doc.URL().String())

	n := l.Locate()
	if n == nil {
		ctx := protocol.DomContext{
			OriginalText: l.original,
			Found:        false,
			Path:         path,
			URL:          pageURL,
		}
		if l.selector != "" {
			ctx.Selector = protocol.String(l.selector)
		}
		return ctx
	}

	text := hostdoc.Text(n)
	l.latest = &text
	original := text
	if l.original != nil {
		original = *l.original
	}
	return protocol.DomContext{
		Selector:     protocol.String(l.DeriveSelector(n)),
		Text:         protocol.String(text),
		OriginalText: protocol.String(original),
		Found:        true,
		Path:         path,
		URL:          pageURL,
	}
}

// Apply executes an update or reset request and builds the acknowledgement.
// Failures are reported in the result, never returned.
func (l *Locator) Apply(req protocol.UpdateHeadline) protocol.HeadlineUpdated {
	var requestID *string
	if req.RequestID != "" {
		requestID = protocol.String(req.RequestID)
	}

	n := l.Locate()
	if n == nil {
		l.sink.Event("locator.apply.failed", zap.String("reason", protocol.ReasonNotFound))
		return protocol.HeadlineUpdated{
			Status:    protocol.StatusError,
			Reason:    protocol.String(protocol.ReasonNotFound),
			RequestID: requestID,
		}
	}

	var next *string
	switch {
	case req.Reset && l.original != nil:
		next = l.original
	case req.Text != nil:
		next = req.Text
	}
	if next == nil {
		l.sink.Event("locator.apply.failed", zap.String("reason", protocol.ReasonInvalidPayload))
		return protocol.HeadlineUpdated{
			Status:    protocol.StatusError,
			Reason:    protocol.String(protocol.ReasonInvalidPayload),
			RequestID: requestID,
		}
	}

	action := protocol.ActionUpdate
	if req.Reset {
		action = protocol.ActionReset
	}

	text := l.Mutate(n, *next)
	l.sink.Event("locator.apply", zap.String("action", string(action)))
	return protocol.HeadlineUpdated{
		Status:    protocol.StatusSuccess,
		Selector:  protocol.String(l.DeriveSelector(n)),
		Text:      protocol.String(text),
		Action:    action,
		RequestID: requestID,
		Path:      protocol.String(l.Path()),
	}
}
