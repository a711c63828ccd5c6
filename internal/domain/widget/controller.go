// Package widget is the iframe half of the embed protocol. The Controller
// owns the display mode, the widget's copy of the host headline, the single
// outstanding mutation request and the cached experiment, and reports
// notable headline events to the conversation.
//
// A Controller is not safe for concurrent use. Every method, and every
// message it receives, must run on the widget frame's Scheduler.
package widget

import (
	"context"
	"math"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Persister saves experiments to the store
type Persister interface {
	Upsert(ctx context.Context, controlToken string, req experiment.UpsertRequest) (*experiment.Snapshot, error)
}

// Options configures a Controller
type Options struct {
	Config experiment.WidgetConfig
	// InitialReveal opens the chat at mount
	InitialReveal bool
	// Location is the iframe's own URL
	Location *url.URL
	// HostOrigin pins the host page origin; empty targets any origin
	HostOrigin string
	Transport  channel.Transport
	Persister  Persister
	Scheduler  frame.Scheduler
	Sink       logging.Sink
	RequestIDs id.Source
	EventIDs   id.Source
	// Go runs persistence calls off the frame loop; defaults to a goroutine
	Go func(func())
	// Context bounds persistence calls
	Context context.Context
}

// Controller is the widget state machine
type Controller struct {
	endpoint  *channel.Endpoint
	persister Persister
	sched     frame.Scheduler
	sink      logging.Sink
	reqIDs    id.Source
	evtIDs    id.Source
	spawn     func(func())
	ctx       context.Context
	location  *url.URL

	config experiment.WidgetConfig
	mode   protocol.Mode

	headline     HeadlineContext
	hostPath     *string
	hostURL      *string
	status       HeadlineStatus
	headlineErr  *string
	pending      *string
	successTimer frame.Timer
	showControls bool

	experiment    *experiment.Snapshot
	expStatus     ExperimentStatus
	expErr        *string
	lastModeReady bool

	events []Event
}

// New creates a controller. Call Start once the frame is mounted.
func New(opts Options) *Controller {
	sink := opts.Sink
	if sink == nil {
		sink = logging.NopSink{}
	}
	reqIDs := opts.RequestIDs
	if reqIDs == nil {
		reqIDs = id.Default().Prefixed(id.RequestPrefix)
	}
	evtIDs := opts.EventIDs
	if evtIDs == nil {
		evtIDs = id.Default().Prefixed(id.EventPrefix)
	}
	spawn := opts.Go
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	location := opts.Location
	if location == nil {
		location = &url.URL{Path: "/"}
	}

	c := &Controller{
		persister:  opts.Persister,
		sched:      opts.Scheduler,
		sink:       sink,
		reqIDs:     reqIDs,
		evtIDs:     evtIDs,
		spawn:      spawn,
		ctx:        ctx,
		location:   location,
		config:     opts.Config,
		mode:       protocol.ModeHidden,
		status:     HeadlineIdle,
		expStatus:  ExperimentIdle,
		experiment: opts.Config.Experiment,
	}
	if opts.InitialReveal {
		c.mode = protocol.ModeChat
	}
	if exp := opts.Config.Experiment; exp != nil && exp.Path != "" {
		path := exp.Path
		c.headline.Path = &path
		c.hostPath = &path
	}

	target := opts.HostOrigin
	if target == "" {
		target = channel.AnyOrigin
	}
	c.endpoint = channel.New(opts.Transport, channel.Options{
		TargetOrigin: target,
		Source:       SourceHost,
		Immediate:    true,
		Sink:         sink,
	})
	c.endpoint.Handle(protocol.TypeShow, c.onShow)
	c.endpoint.Handle(protocol.TypeHide, c.onHide)
	c.endpoint.Handle(protocol.TypeDomContext, c.onDomContext)
	c.endpoint.Handle(protocol.TypeHeadlineUpdated, c.onHeadlineUpdated)
	return c
}

// Start announces the widget to the loader and asks for the headline
func (c *Controller) Start() {
	ready := c.ExperimentReady()
	c.sink.Event("widget.ready",
		zap.String("token", c.config.Token),
		zap.String("siteName", c.config.SiteName),
		zap.String("initialMode", string(c.mode)),
		zap.Bool("experimentReady", ready),
	)
	c.post(protocol.Ready{
		Token:           c.config.Token,
		SiteName:        c.config.SiteName,
		Mode:            c.mode,
		ExperimentReady: ready,
	})
	c.postMode()
	c.requestDomContext()
}

// Receive handles a message posted to the widget window
func (c *Controller) Receive(env channel.Envelope) {
	c.endpoint.Receive(env)
}

// SetTransport attaches the channel to the host window
func (c *Controller) SetTransport(t channel.Transport) {
	c.endpoint.SetTransport(t)
}

func (c *Controller) post(m protocol.Message) {
	if err := c.endpoint.Post(m); err != nil {
		c.sink.Event("widget.post.failed", zap.String("type", string(m.MessageType())), zap.Error(err))
	}
}

func (c *Controller) postMode() {
	ready := c.ExperimentReady()
	c.lastModeReady = ready
	c.sink.Event("widget.mode.post", zap.String("mode", string(c.mode)), zap.Bool("experimentReady", ready))
	c.post(protocol.ModeChange{Mode: c.mode, ExperimentReady: ready})
}

func (c *Controller) setMode(mode protocol.Mode) {
	c.mode = mode
	c.postMode()
}

func (c *Controller) requestDomContext() {
	c.sink.Event("widget.requestDomContext")
	c.post(protocol.RequestDomContext{})
}

// OpenChat handles a click on the launcher
func (c *Controller) OpenChat() {
	c.sink.Event("widget.launcher.click")
	c.setMode(protocol.ModeChat)
}

// Close collapses the chat to the launcher. Only a Hide message hides the
// widget completely.
func (c *Controller) Close() {
	c.sink.Event("widget.close")
	c.setMode(protocol.ModeLauncher)
}

// ReportDimensions tells the loader the measured widget surface
func (c *Controller) ReportDimensions(width, height float64) {
	c.post(protocol.Dimensions{
		Width:  protocol.Float(math.Ceil(width)),
		Height: protocol.Float(math.Ceil(height)),
	})
}

// StartHeadlineTest reveals the headline controls
func (c *Controller) StartHeadlineTest() {
	c.showControls = true
}

func (c *Controller) onShow(m protocol.Message) {
	open := m.(protocol.Show).Open
	c.sink.Event("widget.message.show", zap.Bool("open", open))
	if open {
		c.setMode(protocol.ModeChat)
		return
	}
	c.setMode(protocol.ModeLauncher)
}

func (c *Controller) onHide(protocol.Message) {
	c.sink.Event("widget.message.hide")
	c.setMode(protocol.ModeHidden)
}

// setStatus moves the headline status and manages the success timer
func (c *Controller) setStatus(s HeadlineStatus) {
	if c.successTimer != nil {
		c.successTimer.Stop()
		c.successTimer = nil
	}
	c.status = s
	if s != HeadlineIdle {
		c.showControls = true
	}
	if s == HeadlineSuccess && c.sched != nil {
		c.successTimer = c.sched.AfterFunc(SuccessDisplay, func() {
			if c.status == HeadlineSuccess {
				c.status = HeadlineIdle
			}
			c.successTimer = nil
		})
	}
}

func (c *Controller) setHeadlineError(msg string) {
	if msg == "" {
		c.headlineErr = nil
		return
	}
	c.headlineErr = &msg
}

func (c *Controller) setExperimentState(s ExperimentStatus, msg string) {
	c.expStatus = s
	if msg == "" {
		c.expErr = nil
		return
	}
	c.expErr = &msg
}

func (c *Controller) enqueue(e Event) {
	e.ID = c.evtIDs()
	c.events = append(c.events, e)
	c.sink.Event("widget.event", zap.String("id", e.ID), zap.String("kind", string(e.Kind)))
}

// RequestRewrite queues a rewrite request for the conversation. A nil
// requested uses the current headline.
func (c *Controller) RequestRewrite(requested *string) error {
	var base string
	if requested != nil {
		base = strings.TrimSpace(*requested)
	} else {
		base = c.headline.Baseline()
	}

	if base == "" {
		c.setStatus(HeadlineError)
		c.setHeadlineError(MsgNoHeadline)
		return ErrNoHeadline
	}

	c.enqueue(Event{Kind: EventRewriteRequest, Text: protocol.String(base), Selector: c.headline.Selector})
	c.sink.Event("widget.rewrite.request", zap.String("selector", protocol.Deref(c.headline.Selector)))
	c.setHeadlineError("")
	if c.status != HeadlinePending {
		c.setStatus(HeadlineIdle)
	}
	c.showControls = true
	return nil
}

// Apply asks the loader to replace the headline with text. Blank or
// unchanged text is a no-op that clears any error.
func (c *Controller) Apply(text string) error {
	if c.pending != nil {
		c.sink.Event("widget.headline.apply.skip", zap.String("reason", "pending"))
		return ErrRequestPending
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == strings.TrimSpace(protocol.Deref(c.headline.Text)) {
		c.setStatus(HeadlineIdle)
		c.setHeadlineError("")
		return nil
	}

	requestID := c.reqIDs()
	c.pending = &requestID
	c.setStatus(HeadlinePending)
	c.setHeadlineError("")
	c.setExperimentState(ExperimentIdle, "")
	c.sink.Event("widget.headline.apply.send", zap.String("requestId", requestID))
	c.post(protocol.UpdateHeadline{Text: protocol.String(trimmed), RequestID: requestID})
	return nil
}

// Reset asks the loader to restore the original headline
func (c *Controller) Reset() error {
	if c.pending != nil {
		c.sink.Event("widget.headline.reset.skip", zap.String("reason", "pending"))
		return ErrRequestPending
	}
	if protocol.Deref(c.headline.OriginalText) == "" {
		c.setStatus(HeadlineError)
		c.setHeadlineError(MsgNoOriginal)
		c.sink.Event("widget.headline.reset.error", zap.String("reason", "missing-original"))
		return ErrNoOriginal
	}

	requestID := c.reqIDs()
	c.pending = &requestID
	c.setStatus(HeadlinePending)
	c.setHeadlineError("")
	c.setExperimentState(ExperimentIdle, "")
	c.sink.Event("widget.headline.reset.send", zap.String("requestId", requestID))
	c.post(protocol.UpdateHeadline{Reset: true, RequestID: requestID})
	return nil
}

func (c *Controller) onDomContext(m protocol.Message) {
	msg := m.(protocol.DomContext)
	c.sink.Event("widget.message.domContext", zap.Bool("found", msg.Found), zap.String("selector", protocol.Deref(msg.Selector)))

	prev := c.headline
	next := HeadlineContext{
		Selector: firstNonNil(msg.Selector, prev.Selector),
		Text:     firstNonNil(msg.Text, prev.Text),
	}
	next.OriginalText = prev.OriginalText
	if next.OriginalText == nil {
		next.OriginalText = firstNonNil(msg.OriginalText, next.Text)
	}
	next.Found = msg.Found && (next.Text != nil || next.OriginalText != nil)
	next.Path = firstNonNil(msg.Path, prev.Path, c.hostPath)
	next.URL = firstNonNil(msg.URL, prev.URL, c.hostURL)
	if next.Path != nil {
		c.hostPath = next.Path
	}
	if msg.URL != nil {
		c.hostURL = msg.URL
	}
	c.headline = next

	if !msg.Found {
		if c.status != HeadlinePending {
			c.setStatus(HeadlineError)
		}
		c.setHeadlineError(MsgNotFound)
		return
	}
	if c.status == HeadlineError {
		c.setStatus(HeadlineIdle)
	}
	c.setHeadlineError("")
}

func (c *Controller) onHeadlineUpdated(m protocol.Message) {
	msg := m.(protocol.HeadlineUpdated)

	if msg.RequestID != nil && (c.pending == nil || *c.pending != *msg.RequestID) {
		c.sink.Event("widget.message.headlineUpdated.stale", zap.String("requestId", *msg.RequestID))
		return
	}
	c.pending = nil

	switch msg.Status {
	case protocol.StatusSuccess:
		c.onMutationSucceeded(msg)
	case protocol.StatusError:
		reason := MsgUpdateFailed
		if msg.Reason != nil {
			reason = *msg.Reason
		}
		c.setStatus(HeadlineError)
		c.setHeadlineError(reason)
		c.setExperimentState(ExperimentError, reason)
		c.enqueue(Event{Kind: EventExperimentError, Message: reason})
		c.sink.Event("widget.message.headlineUpdated", zap.String("status", "error"), zap.String("reason", reason))
	}
}

func (c *Controller) onMutationSucceeded(msg protocol.HeadlineUpdated) {
	action := protocol.ActionUpdate
	if msg.Action == protocol.ActionReset {
		action = protocol.ActionReset
	}

	prev := c.headline
	selector := firstNonNil(msg.Selector, prev.Selector)
	text := firstNonNil(msg.Text, prev.Text)
	control := firstNonNil(prev.OriginalText, prev.Text)
	path := firstNonNil(msg.Path, prev.Path, c.hostPath)
	if msg.Path != nil {
		c.hostPath = msg.Path
	}

	c.sink.Event("widget.message.headlineUpdated",
		zap.String("action", string(action)),
		zap.String("selector", protocol.Deref(selector)),
		zap.String("path", protocol.Deref(path)),
	)
	c.setStatus(HeadlineSuccess)
	c.setHeadlineError("")

	c.headline = HeadlineContext{
		Selector:     selector,
		Text:         text,
		OriginalText: firstNonNil(prev.OriginalText, text),
		Found:        true,
		Path:         path,
		URL:          firstNonNil(prev.URL, c.hostURL),
	}
	c.enqueue(Event{Kind: EventApplied, Action: action, Text: text, Selector: selector})

	var variant *string
	if action == protocol.ActionUpdate {
		variant = text
	}
	c.persist(persistRequest{
		action:   experiment.Action(action),
		selector: selector,
		variant:  variant,
		control:  control,
		path:     path,
	})

	if msg.Text == nil {
		c.requestDomContext()
	}
}

func firstNonNil(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Mode returns the current display mode
func (c *Controller) Mode() protocol.Mode { return c.mode }

// Config returns the widget configuration with the cached experiment
func (c *Controller) Config() experiment.WidgetConfig {
	cfg := c.config
	cfg.Experiment = c.experiment
	return cfg
}

// Headline returns the widget's copy of the host headline
func (c *Controller) Headline() HeadlineContext { return c.headline }

// HeadlineStatus returns the mutation status
func (c *Controller) HeadlineStatus() HeadlineStatus { return c.status }

// HeadlineError returns the message shown with an error status
func (c *Controller) HeadlineError() string { return protocol.Deref(c.headlineErr) }

// Pending returns the outstanding request id, if any
func (c *Controller) Pending() (string, bool) {
	if c.pending == nil {
		return "", false
	}
	return *c.pending, true
}

// Experiment returns the cached experiment
func (c *Controller) Experiment() *experiment.Snapshot { return c.experiment }

// ExperimentReady reports whether the cached experiment has a variant
func (c *Controller) ExperimentReady() bool { return c.experiment.HasVariant() }

// ExperimentStatus returns the persistence status
func (c *Controller) ExperimentStatus() ExperimentStatus { return c.expStatus }

// ExperimentError returns the last persistence error message
func (c *Controller) ExperimentError() string { return protocol.Deref(c.expErr) }

// Busy reports whether a mutation or save is in flight
func (c *Controller) Busy() bool {
	return c.status == HeadlinePending || c.expStatus == ExperimentSaving
}

// CanRewrite reports whether a rewrite request would be accepted
func (c *Controller) CanRewrite() bool {
	return c.expStatus != ExperimentSaving && c.headline.Baseline() != ""
}

// ShowControls reports whether the headline controls are revealed
func (c *Controller) ShowControls() bool { return c.showControls }

// Events returns a copy of the queued headline events
func (c *Controller) Events() []Event {
	return append([]Event(nil), c.events...)
}

// ConsumeEvents removes the given events from the queue
func (c *Controller) ConsumeEvents(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, eid := range ids {
		drop[eid] = struct{}{}
	}
	kept := c.events[:0]
	for _, e := range c.events {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	c.events = kept
}
