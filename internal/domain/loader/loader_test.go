package loader

import (
	"context"
	"net/url"
	"testing"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/hostdoc"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetOrigin = "https://widget.example"

const hostPage = `<!doctype html><html><head></head><body>
<h1 id="hero">Original headline</h1>
<script src="https://widget.example/widget/embed.js" data-token=" acme "></script>
</body></html>`

type fixture struct {
	doc    *hostdoc.Document
	loader *Loader
	rec    *channel.Recorder
	src    *url.URL
}

func newFixture(t *testing.T, pageURL string) *fixture {
	t.Helper()
	doc, err := hostdoc.ParseString(hostPage, pageURL)
	require.NoError(t, err)

	f := &fixture{doc: doc, rec: &channel.Recorder{}}
	opts := OptionsFromDocument(context.Background(), doc)
	opts.Connect = func(src *url.URL) channel.Transport {
		f.src = src
		return f.rec
	}
	f.loader, err = New(doc, opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) deliver(t *testing.T, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(t, err)
	f.loader.Receive(channel.Envelope{Origin: widgetOrigin, Source: SourceWidget, Data: data})
}

func (f *fixture) handshake(t *testing.T) {
	f.deliver(t, protocol.Ready{Token: "acme", SiteName: "Acme", Mode: protocol.ModeHidden})
}

func TestOptionsFromDocument(t *testing.T) {
	doc, err := hostdoc.ParseString(hostPage, "https://shop.example/pricing?hltDebug=1")
	require.NoError(t, err)

	opts := OptionsFromDocument(context.Background(), doc)
	assert.Equal(t, "acme", opts.Token)
	assert.Equal(t, widgetOrigin, opts.ScriptOrigin)
	assert.True(t, opts.Debug)
}

func TestOptionsDebugFromGlobal(t *testing.T) {
	page := `<html><head><script>window.HeadlineTesterWidgetDebug = 1;</script></head><body>
<script src="/widget/embed.js" data-token=""></script></body></html>`
	doc, err := hostdoc.ParseString(page, "https://shop.example/")
	require.NoError(t, err)

	opts := OptionsFromDocument(context.Background(), doc)
	assert.True(t, opts.Debug)
	assert.Equal(t, DefaultToken, opts.Token)
	assert.Equal(t, "https://shop.example", opts.ScriptOrigin)
}

func TestMountWaitsForDocument(t *testing.T) {
	f := newFixture(t, "https://shop.example/pricing")
	assert.Nil(t, f.loader.Frame())

	f.doc.MarkLoaded()
	require.NotNil(t, f.loader.Frame())
	require.NotNil(t, f.src)
	assert.Equal(t, "https://widget.example/widget?path=%2Fpricing&token=acme", f.src.String())
	assert.Same(t, f.loader.Container(), f.doc.ElementByID(ContainerID))
	assert.Same(t, f.loader.Frame(), f.doc.ElementByID(FrameID))
	assert.Equal(t, "none", f.loader.Style()["display"])
}

func TestSecondLoaderRefused(t *testing.T) {
	f := newFixture(t, "https://shop.example/")
	_, err := New(f.doc, Options{})
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
}

func TestShowBeforeHandshakeQueuesInOrder(t *testing.T) {
	f := newFixture(t, "https://shop.example/pricing")
	f.doc.MarkLoaded()

	f.loader.Show(ShowOptions{Open: true})
	assert.Empty(t, f.rec.Posts())
	assert.Equal(t, protocol.ModeChat, f.loader.Mode())
	assert.Equal(t, "block", f.loader.Style()["display"])
	assert.Equal(t, "400px", f.loader.Style()["width"])

	f.handshake(t)
	msgs := f.rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.Show{Open: true}, msgs[0])
	assert.Equal(t, protocol.TypeDomContext, msgs[1].MessageType())
	for _, p := range f.rec.Posts() {
		assert.Equal(t, widgetOrigin, p.TargetOrigin)
	}

	assert.True(t, f.loader.Ready())
	assert.Equal(t, "Acme", f.loader.SiteName())
	assert.Equal(t, "acme", f.loader.Token())
	assert.Len(t, f.rec.OfType(protocol.TypeShow), 1)
}

func TestHandshakeBeforeDocumentReady(t *testing.T) {
	f := newFixture(t, "https://shop.example/pricing")
	f.loader.Show(ShowOptions{})
	f.doc.MarkLoaded()
	f.handshake(t)

	ctx := f.rec.OfType(protocol.TypeDomContext)
	require.Len(t, ctx, 1)
	dc := ctx[0].(protocol.DomContext)
	assert.True(t, dc.Found)
	assert.Equal(t, "#hero", protocol.Deref(dc.Selector))
	assert.Equal(t, "Original headline", protocol.Deref(dc.OriginalText))
	assert.Equal(t, "/pricing", protocol.Deref(dc.Path))
}

func TestAutoReveal(t *testing.T) {
	f := newFixture(t, "https://shop.example/?hlt=1")
	f.doc.MarkLoaded()
	f.handshake(t)

	assert.True(t, f.loader.Visible())
	assert.Equal(t, protocol.ModeLauncher, f.loader.Mode())
	assert.Len(t, f.rec.OfType(protocol.TypeShow), 1)
}

func TestAutoRevealSkippedAfterExplicitHide(t *testing.T) {
	f := newFixture(t, "https://shop.example/?hlt=1")
	f.doc.MarkLoaded()
	f.loader.Hide()
	f.handshake(t)

	assert.False(t, f.loader.Visible())
	assert.Empty(t, f.rec.OfType(protocol.TypeShow))
	assert.Len(t, f.rec.OfType(protocol.TypeHide), 1)
}

func TestHideIsIdempotent(t *testing.T) {
	f := newFixture(t, "https://shop.example/")
	f.doc.MarkLoaded()
	f.handshake(t)
	f.rec.Reset()

	f.loader.Hide()
	f.loader.Hide()
	assert.Equal(t, protocol.ModeHidden, f.loader.Mode())
	assert.Equal(t, "none", f.loader.Style()["display"])
	assert.Equal(t, "none", f.loader.Style()["box-shadow"])
	assert.Len(t, f.rec.OfType(protocol.TypeHide), 2)
}

func TestModeAndDimensionsDriveLayout(t *testing.T) {
	f := newFixture(t, "https://shop.example/")
	f.doc.MarkLoaded()
	f.handshake(t)
	f.loader.Show(ShowOptions{})

	f.deliver(t, protocol.ModeChange{Mode: protocol.ModeChat, ExperimentReady: true})
	style := f.loader.Style()
	assert.Equal(t, "20px", style["border-radius"])
	assert.Equal(t, ChatBoxShadow, style["box-shadow"])
	assert.Equal(t, "400px", style["width"])
	assert.Equal(t, "640px", style["height"])
	assert.True(t, f.loader.ExperimentReady())

	f.deliver(t, protocol.Dimensions{Width: protocol.Float(100), Height: protocol.Float(900)})
	style = f.loader.Style()
	assert.Equal(t, "320px", style["width"], "clamped to the chat minimum")
	assert.Equal(t, "900px", style["height"])

	f.deliver(t, protocol.ModeChange{Mode: protocol.ModeLauncher})
	style = f.loader.Style()
	assert.Equal(t, "9999px", style["border-radius"])
	assert.Equal(t, LauncherBoxShadow, style["box-shadow"])
	assert.Equal(t, "100px", style["width"])

	f.deliver(t, protocol.ModeChange{Mode: "bogus"})
	assert.Equal(t, protocol.ModeLauncher, f.loader.Mode())
}

func TestUpdateHeadlineAcksThenSendsContext(t *testing.T) {
	f := newFixture(t, "https://shop.example/pricing")
	f.handshake(t)

	f.deliver(t, protocol.UpdateHeadline{Text: protocol.String("New headline"), RequestID: "req-1"})
	assert.Empty(t, f.rec.OfType(protocol.TypeHeadlineUpdated), "deferred until the document is ready")

	f.doc.MarkLoaded()
	msgs := f.rec.Messages()
	require.GreaterOrEqual(t, len(msgs), 2)

	var ackIdx, ctxIdx = -1, -1
	for i, m := range msgs {
		switch m.MessageType() {
		case protocol.TypeHeadlineUpdated:
			ackIdx = i
		case protocol.TypeDomContext:
			ctxIdx = i
		}
	}
	require.NotEqual(t, -1, ackIdx)
	assert.Greater(t, ctxIdx, ackIdx)

	ack := msgs[ackIdx].(protocol.HeadlineUpdated)
	assert.Equal(t, protocol.StatusSuccess, ack.Status)
	assert.Equal(t, "req-1", protocol.Deref(ack.RequestID))
	assert.Equal(t, "New headline", protocol.Deref(ack.Text))

	ctx := msgs[ctxIdx].(protocol.DomContext)
	assert.Equal(t, "New headline", protocol.Deref(ctx.Text))
	assert.Equal(t, "Original headline", protocol.Deref(ctx.OriginalText))
	assert.Equal(t, "New headline", hostdoc.Text(f.doc.ElementByID("hero")))
}

func TestForeignMessagesIgnored(t *testing.T) {
	f := newFixture(t, "https://shop.example/")
	f.doc.MarkLoaded()

	data, err := protocol.Encode(protocol.Ready{Token: "x"})
	require.NoError(t, err)
	f.loader.Receive(channel.Envelope{Origin: "https://evil.example", Source: SourceWidget, Data: data})
	f.loader.Receive(channel.Envelope{Origin: widgetOrigin, Source: "other", Data: data})
	f.loader.Receive(channel.Envelope{Origin: widgetOrigin, Source: SourceWidget, Data: []byte("garbage")})
	assert.False(t, f.loader.Ready())
}

func TestDebugSinkReceivesEvents(t *testing.T) {
	doc, err := hostdoc.ParseString(hostPage, "https://shop.example/")
	require.NoError(t, err)
	sink := &logging.RecordingSink{}
	_, err = New(doc, Options{Token: "acme", ScriptOrigin: widgetOrigin, Sink: sink})
	require.NoError(t, err)
	doc.MarkLoaded()

	assert.Contains(t, sink.Labels(), "loader.init")
	assert.Contains(t, sink.Labels(), "loader.mount")
}
