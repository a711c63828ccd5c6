package loader_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/loader"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/widget"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shopOrigin   = "https://shop.example"
	widgetOrigin = "https://widget.example"
)

const (
	embedPage = `<!doctype html><html><head></head><body>
<h1 id="hero">Original headline</h1>
<script src="https://widget.example/widget/embed.js" data-token="acme"></script>
</body></html>`

	headlessPage = `<!doctype html><html><head></head><body>
<p>No headline here</p>
<script src="https://widget.example/widget/embed.js" data-token="acme"></script>
</body></html>`
)

type memoryStore struct {
	calls  []experiment.UpsertRequest
	tokens []string
}

func (s *memoryStore) Upsert(_ context.Context, token string, req experiment.UpsertRequest) (*experiment.Snapshot, error) {
	s.calls = append(s.calls, req)
	s.tokens = append(s.tokens, token)
	control := req.ControlHeadline
	return &experiment.Snapshot{
		ID:              "exp_1",
		Path:            req.Path,
		Status:          req.Action.DefaultStatus(),
		Selector:        req.Selector,
		ControlHeadline: &control,
		VariantHeadline: req.VariantHeadline,
		UpdatedAt:       time.Unix(0, 0),
	}, nil
}

// embed is a host page and a widget frame joined by in-process links, each
// frame on its own manual scheduler
type embed struct {
	doc        *hostdoc.Document
	loader     *loader.Loader
	ctrl       *widget.Controller
	store      *memoryStore
	hostLoop   *frame.Manual
	widgetLoop *frame.Manual
	// toWidget records every message the widget frame received, in order
	toWidget []protocol.Message
}

func newEmbed(t *testing.T, page, pageURL string) *embed {
	t.Helper()
	doc, err := hostdoc.ParseString(page, pageURL)
	require.NoError(t, err)

	e := &embed{
		doc:        doc,
		store:      &memoryStore{},
		hostLoop:   frame.NewManual(),
		widgetLoop: frame.NewManual(),
	}

	cfg := experiment.DemoConfig()
	cfg.Token = "acme"
	location, err := url.Parse(widgetOrigin + "/widget?token=acme&path=%2Fpricing")
	require.NoError(t, err)

	e.ctrl = widget.New(widget.Options{
		Config:   cfg,
		Location: location,
		Transport: &channel.Link{
			SenderOrigin:   widgetOrigin,
			SenderSource:   loader.SourceWidget,
			ReceiverOrigin: shopOrigin,
			Receiver:       func(env channel.Envelope) { e.loader.Receive(env) },
			Scheduler:      e.hostLoop,
		},
		Persister:  e.store,
		Scheduler:  e.widgetLoop,
		RequestIDs: id.Sequence("req"),
		EventIDs:   id.Sequence("evt"),
		Go:         func(fn func()) { fn() },
	})

	opts := loader.OptionsFromDocument(context.Background(), doc)
	opts.Connect = func(*url.URL) channel.Transport {
		return &channel.Link{
			SenderOrigin:   shopOrigin,
			SenderSource:   widget.SourceHost,
			ReceiverOrigin: widgetOrigin,
			Receiver: func(env channel.Envelope) {
				if m, err := protocol.Decode(env.Data); err == nil {
					e.toWidget = append(e.toWidget, m)
				}
				e.ctrl.Receive(env)
			},
			Scheduler: e.widgetLoop,
		}
	}
	e.loader, err = loader.New(doc, opts)
	require.NoError(t, err)
	return e
}

// boot finishes the page load, which mounts the iframe, and starts the widget
func (e *embed) boot(t *testing.T) {
	t.Helper()
	e.doc.MarkLoaded()
	require.NotNil(t, e.loader.Frame())
	e.widgetLoop.Post(e.ctrl.Start)
	e.settle(t)
}

// settle runs both frames until neither has work queued
func (e *embed) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		if e.hostLoop.Drain()+e.widgetLoop.Drain() == 0 {
			return
		}
	}
	t.Fatal("frames did not settle")
}

func (e *embed) received(typ protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range e.toWidget {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (e *embed) heroText() string {
	return hostdoc.Text(e.doc.ElementByID("hero"))
}

func TestEmbedHeadlineRoundTrip(t *testing.T) {
	e := newEmbed(t, embedPage, shopOrigin+"/pricing?hlt=1")
	e.boot(t)

	// Handshake and auto reveal
	assert.True(t, e.loader.Ready())
	assert.Equal(t, "Demo Workspace", e.loader.SiteName())
	assert.Equal(t, protocol.ModeLauncher, e.ctrl.Mode())
	assert.Equal(t, protocol.ModeLauncher, e.loader.Mode())
	assert.True(t, e.loader.Visible())
	assert.Len(t, e.received(protocol.TypeShow), 1)

	hl := e.ctrl.Headline()
	assert.True(t, hl.Found)
	assert.Equal(t, "Original headline", protocol.Deref(hl.Text))
	assert.Equal(t, "#hero", protocol.Deref(hl.Selector))
	assert.False(t, e.loader.ExperimentReady())

	// Apply, with a second request refused while the first is in flight
	require.NoError(t, e.ctrl.Apply("  New headline  "))
	assert.ErrorIs(t, e.ctrl.Apply("Another headline"), widget.ErrRequestPending)
	assert.Equal(t, widget.HeadlinePending, e.ctrl.HeadlineStatus())
	e.settle(t)

	assert.Equal(t, "New headline", e.heroText())
	assert.Equal(t, widget.HeadlineSuccess, e.ctrl.HeadlineStatus())
	hl = e.ctrl.Headline()
	assert.Equal(t, "New headline", protocol.Deref(hl.Text))
	assert.Equal(t, "Original headline", protocol.Deref(hl.OriginalText))

	// The acknowledgement arrives before the refreshed context
	var order []protocol.Type
	for _, m := range e.toWidget {
		switch m.MessageType() {
		case protocol.TypeHeadlineUpdated, protocol.TypeDomContext:
			order = append(order, m.MessageType())
		}
	}
	require.GreaterOrEqual(t, len(order), 2)
	assert.Equal(t, []protocol.Type{protocol.TypeHeadlineUpdated, protocol.TypeDomContext}, order[len(order)-2:])

	require.Len(t, e.store.calls, 1)
	saved := e.store.calls[0]
	assert.Equal(t, "demo-control-token", e.store.tokens[0])
	assert.Equal(t, "acme", saved.Token)
	assert.Equal(t, "/pricing", saved.Path)
	assert.Equal(t, "#hero", protocol.Deref(saved.Selector))
	assert.Equal(t, "Original headline", saved.ControlHeadline)
	assert.Equal(t, "New headline", protocol.Deref(saved.VariantHeadline))
	assert.Equal(t, experiment.ActionUpdate, saved.Action)

	assert.Equal(t, widget.ExperimentSuccess, e.ctrl.ExperimentStatus())
	assert.True(t, e.ctrl.ExperimentReady())
	assert.True(t, e.loader.ExperimentReady(), "loader mirrors the widget's mode report")

	e.widgetLoop.Advance(widget.SuccessDisplay)
	assert.Equal(t, widget.HeadlineIdle, e.ctrl.HeadlineStatus())

	// Reset restores the captured original and clears the variant
	require.NoError(t, e.ctrl.Reset())
	e.settle(t)
	assert.Equal(t, "Original headline", e.heroText())
	require.Len(t, e.store.calls, 2)
	assert.Equal(t, experiment.ActionReset, e.store.calls[1].Action)
	assert.Nil(t, e.store.calls[1].VariantHeadline)
	assert.False(t, e.ctrl.ExperimentReady())
	assert.False(t, e.loader.ExperimentReady())

	// Hide
	e.loader.Hide()
	e.settle(t)
	assert.Equal(t, protocol.ModeHidden, e.ctrl.Mode())
	assert.Equal(t, protocol.ModeHidden, e.loader.Mode())
	assert.False(t, e.loader.Visible())
	assert.Equal(t, "none", e.loader.Style()["display"])
}

func TestEmbedQueuedShowDeliveredOnce(t *testing.T) {
	e := newEmbed(t, embedPage, shopOrigin+"/pricing?hlt=1")

	e.loader.Show(loader.ShowOptions{Open: true})
	e.doc.MarkLoaded()
	e.settle(t)
	assert.Empty(t, e.toWidget, "nothing crosses before the widget is ready")

	e.widgetLoop.Post(e.ctrl.Start)
	e.settle(t)

	shows := e.received(protocol.TypeShow)
	require.Len(t, shows, 1, "an explicit show suppresses the auto reveal")
	assert.Equal(t, protocol.Show{Open: true}, shows[0])
	assert.Equal(t, protocol.TypeShow, e.toWidget[0].MessageType(), "queued messages flush first")
	assert.Equal(t, protocol.ModeChat, e.ctrl.Mode())
	assert.Equal(t, protocol.ModeChat, e.loader.Mode())
	assert.Equal(t, "400px", e.loader.Style()["width"])
}

func TestEmbedMissingHeadline(t *testing.T) {
	e := newEmbed(t, headlessPage, shopOrigin+"/pricing")
	e.boot(t)

	assert.False(t, e.ctrl.Headline().Found)
	assert.Equal(t, widget.HeadlineError, e.ctrl.HeadlineStatus())

	require.NoError(t, e.ctrl.Apply("New headline"))
	e.settle(t)
	assert.Equal(t, widget.HeadlineError, e.ctrl.HeadlineStatus())
	assert.Equal(t, widget.ExperimentError, e.ctrl.ExperimentStatus())
	assert.Equal(t, protocol.ReasonNotFound, e.ctrl.ExperimentError())
	assert.Equal(t, widget.MsgNotFound, e.ctrl.HeadlineError(), "the refreshed context reports the missing element")
	assert.Empty(t, e.store.calls)
}
