// Package loader is the host-page half of the embed protocol. A Loader owns
// the widget container and iframe inside the host document, mirrors the
// widget's mode for layout, and executes headline mutations on the widget's
// behalf through a Locator.
//
// A Loader is not safe for concurrent use. Drive it from the host frame's
// event loop.
package loader

import (
	"errors"
	"net/url"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/locator"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	ContainerID = "headline-tester-widget-container"
	FrameID     = "headline-tester-widget-iframe"
	FrameTitle  = "Headline Tester Widget"
	// LoaderFlag marks a document that already runs a loader
	LoaderFlag = "__headlineTesterWidgetLoader"
	// RevealParam set to "1" in the page query opens the widget after the handshake
	RevealParam = "hlt"
	// SourceWidget identifies the iframe window on inbound envelopes
	SourceWidget = "widget"
)

// ErrAlreadyLoaded is returned when a second loader targets the same document
var ErrAlreadyLoaded = errors.New("loader already running in document")

// ShowOptions controls Show
type ShowOptions struct {
	Open bool
}

// Loader manages the widget inside one host document
type Loader struct {
	doc      *hostdoc.Document
	locator  *locator.Locator
	endpoint *channel.Endpoint
	connect  Connector
	sink     logging.Sink

	token     string
	widgetURL *url.URL

	container      *html.Node
	frame          *html.Node
	style          Style
	mode           protocol.Mode
	measured       *protocol.Dimensions
	requested      bool
	explicit       bool
	ready          bool
	experimentOn   bool
	reportedToken  string
	reportedSite   string
	mountScheduled bool
}

// New attaches a loader to doc. Mounting the iframe waits for the document
// to finish loading.
func New(doc *hostdoc.Document, opts Options) (*Loader, error) {
	if _, ok := doc.Global(LoaderFlag); ok {
		return nil, ErrAlreadyLoaded
	}
	doc.SetGlobal(LoaderFlag, "true")

	sink := opts.Sink
	if sink == nil {
		sink = logging.NopSink{}
	}
	token := opts.Token
	if token == "" {
		token = DefaultToken
	}
	scriptOrigin := opts.ScriptOrigin
	if scriptOrigin == "" {
		scriptOrigin = origin(doc.URL())
	}

	l := &Loader{
		doc:     doc,
		locator: locator.New(doc, opts.Strategies, sink),
		connect: opts.Connect,
		sink:    sink,
		token:   token,
		style:   containerStyle(),
		mode:    protocol.ModeHidden,
	}
	l.widgetURL = buildWidgetURL(scriptOrigin, token, l.locator.Path())

	targetOrigin := origin(l.widgetURL)
	if targetOrigin == "" {
		targetOrigin = channel.AnyOrigin
	}
	l.endpoint = channel.New(nil, channel.Options{
		TargetOrigin: targetOrigin,
		Source:       SourceWidget,
		Sink:         sink,
	})
	l.endpoint.Handle(protocol.TypeReady, l.onReady)
	l.endpoint.Handle(protocol.TypeMode, l.onMode)
	l.endpoint.Handle(protocol.TypeDimensions, l.onDimensions)
	l.endpoint.Handle(protocol.TypeUpdateHeadline, l.onUpdateHeadline)
	l.endpoint.Handle(protocol.TypeRequestDomContext, l.onRequestDomContext)

	sink.Event("loader.init", zap.String("token", token), zap.String("widgetUrl", l.widgetURL.String()))
	l.mountWhenReady()
	return l, nil
}

func buildWidgetURL(scriptOrigin, token, path string) *url.URL {
	u, err := url.Parse(scriptOrigin)
	if err != nil || u.Host == "" {
		u = &url.URL{}
	}
	u = u.ResolveReference(&url.URL{Path: "/widget"})
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	if path != "" {
		q.Set("path", path)
	}
	u.RawQuery = q.Encode()
	return u
}

// Receive handles a message posted to the host window
func (l *Loader) Receive(env channel.Envelope) {
	l.endpoint.Receive(env)
}

// Show mounts the iframe if needed and reveals the widget, as a launcher or
// with the chat open.
func (l *Loader) Show(opts ShowOptions) {
	l.mountWhenReady()
	l.requested = true
	l.explicit = true

	mode := protocol.ModeLauncher
	if opts.Open {
		mode = protocol.ModeChat
	}
	l.setMode(mode)
	l.setVisible(true)
	l.send(protocol.Show{Open: opts.Open})
	l.sink.Event("loader.show", zap.Bool("open", opts.Open))
}

// Hide hides the widget completely. Repeated calls are harmless.
func (l *Loader) Hide() {
	l.requested = false
	l.explicit = true
	l.send(protocol.Hide{})
	l.setMode(protocol.ModeHidden)
	l.setVisible(false)
	l.sink.Event("loader.hide")
}

// Ready reports whether the handshake completed
func (l *Loader) Ready() bool { return l.ready }

// ExperimentReady reports whether the widget holds a variant headline
func (l *Loader) ExperimentReady() bool { return l.experimentOn }

// Token returns the token reported by the widget, or the configured one
// before the handshake
func (l *Loader) Token() string {
	if l.reportedToken != "" {
		return l.reportedToken
	}
	return l.token
}

// SiteName returns the site name reported at handshake
func (l *Loader) SiteName() string { return l.reportedSite }

// Mode returns the mirrored widget mode
func (l *Loader) Mode() protocol.Mode { return l.mode }

// Visible reports whether the widget has been requested visible
func (l *Loader) Visible() bool { return l.requested }

// WidgetURL returns the iframe src
func (l *Loader) WidgetURL() *url.URL {
	u := *l.widgetURL
	return &u
}

// Container returns the container element, nil before mount
func (l *Loader) Container() *html.Node { return l.container }

// Frame returns the iframe element, nil before mount
func (l *Loader) Frame() *html.Node { return l.frame }

// Style returns a copy of the container's current inline style
func (l *Loader) Style() Style { return l.style.clone() }

// Locator exposes the headline locator bound to this document
func (l *Loader) Locator() *locator.Locator { return l.locator }

// Endpoint exposes the host side of the channel
func (l *Loader) Endpoint() *channel.Endpoint { return l.endpoint }

func (l *Loader) send(m protocol.Message) {
	if err := l.endpoint.Send(m); err != nil {
		l.sink.Event("loader.send.failed", zap.String("type", string(m.MessageType())), zap.Error(err))
	}
}

func (l *Loader) post(m protocol.Message) {
	if err := l.endpoint.Post(m); err != nil {
		l.sink.Event("loader.post.failed", zap.String("type", string(m.MessageType())), zap.Error(err))
	}
}

func (l *Loader) mountWhenReady() {
	if l.mountScheduled {
		return
	}
	l.mountScheduled = true
	l.doc.WhenReady(l.mount)
}

func (l *Loader) mount() {
	l.ensureFrame()
}

func (l *Loader) ensureContainer() *html.Node {
	if l.container != nil && l.container.Parent != nil {
		return l.container
	}

	if existing := l.doc.ElementByID(ContainerID); existing != nil {
		l.container = existing
	} else if l.container == nil {
		l.container = &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr:     []html.Attribute{{Key: "id", Val: ContainerID}},
		}
	}

	if l.container.Parent == nil {
		if body := l.doc.Body(); body != nil {
			body.AppendChild(l.container)
		}
	}
	l.flushStyle()
	return l.container
}

func (l *Loader) ensureFrame() *html.Node {
	if l.frame != nil && l.frame.Parent != nil {
		return l.frame
	}

	root := l.ensureContainer()
	if existing := l.doc.ElementByID(FrameID); existing != nil {
		l.frame = existing
	} else if l.frame == nil {
		l.frame = &html.Node{
			Type:     html.ElementNode,
			Data:     "iframe",
			DataAtom: atom.Iframe,
			Attr: []html.Attribute{
				{Key: "id", Val: FrameID},
				{Key: "allow", Val: "clipboard-write"},
				{Key: "title", Val: FrameTitle},
				{Key: "style", Val: frameStyle().String()},
			},
		}
	}
	if l.frame.Parent == nil {
		root.AppendChild(l.frame)
	}
	if src, ok := hostdoc.Attr(l.frame, "src"); !ok || src == "" {
		hostdoc.SetAttr(l.frame, "src", l.widgetURL.String())
		l.sink.Event("loader.mount", zap.String("src", l.widgetURL.String()))
		if l.connect != nil {
			l.endpoint.SetTransport(l.connect(l.WidgetURL()))
		}
	}
	return l.frame
}

func (l *Loader) flushStyle() {
	if l.container != nil {
		hostdoc.SetAttr(l.container, "style", l.style.String())
	}
}

func (l *Loader) setMode(mode protocol.Mode) {
	if !mode.Valid() {
		return
	}
	l.mode = mode
	applyMode(l.style, mode)
	l.updateSize()
}

func (l *Loader) updateSize() {
	w, h := size(l.mode, l.measured)
	l.style["width"] = px(w)
	l.style["height"] = px(h)
	l.style["max-width"] = "calc(100vw - 48px)"
	l.style["max-height"] = "calc(100vh - 48px)"
	l.flushStyle()
}

func (l *Loader) setVisible(visible bool) {
	if visible {
		l.style["display"] = "block"
		l.style["pointer-events"] = "auto"
		applyMode(l.style, l.mode)
		l.updateSize()
		return
	}
	l.style["display"] = "none"
	l.style["pointer-events"] = "none"
	l.flushStyle()
}

func (l *Loader) sendContext() {
	ctx := l.locator.Context()
	l.sink.Event("loader.context", zap.Bool("found", ctx.Found), zap.String("selector", protocol.Deref(ctx.Selector)))
	l.send(ctx)
}

func (l *Loader) onReady(m protocol.Message) {
	msg := m.(protocol.Ready)
	l.ready = true
	l.reportedToken = msg.Token
	l.reportedSite = msg.SiteName
	l.experimentOn = msg.ExperimentReady
	l.sink.Event("loader.ready", zap.String("token", msg.Token), zap.String("siteName", msg.SiteName))

	l.updateSize()
	if err := l.endpoint.MarkReady(); err != nil {
		l.sink.Event("loader.flush.failed", zap.Error(err))
	}
	l.autoReveal()
	l.doc.WhenReady(l.sendContext)
}

func (l *Loader) autoReveal() {
	if l.explicit {
		return
	}
	if l.doc.URL().Query().Get(RevealParam) != "1" {
		return
	}
	l.sink.Event("loader.autoReveal")
	l.Show(ShowOptions{})
}

func (l *Loader) onMode(m protocol.Message) {
	msg := m.(protocol.ModeChange)
	if !msg.Mode.Valid() {
		return
	}
	l.experimentOn = msg.ExperimentReady
	l.setMode(msg.Mode)
}

func (l *Loader) onDimensions(m protocol.Message) {
	msg := m.(protocol.Dimensions)
	if msg.Width == nil && msg.Height == nil {
		return
	}
	l.measured = &protocol.Dimensions{Width: msg.Width, Height: msg.Height}
	l.updateSize()
}

func (l *Loader) onUpdateHeadline(m protocol.Message) {
	msg := m.(protocol.UpdateHeadline)
	l.doc.WhenReady(func() {
		ack := l.locator.Apply(msg)
		l.post(ack)
		l.sendContext()
	})
}

func (l *Loader) onRequestDomContext(protocol.Message) {
	l.doc.WhenReady(l.sendContext)
}
