// Package channel implements one side of the cross-frame message channel.
//
// An Endpoint sends tagged protocol messages to its counterpart frame and
// dispatches incoming ones to registered handlers. Until the handshake
// completes, Send queues; MarkReady flushes the queue in FIFO order exactly
// once and switches to immediate transmission.
package channel

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// AnyOrigin disables origin checks on receive and targets any origin on send
const AnyOrigin = "*"

// ErrNoTransport is returned when the counterpart frame is not mounted
var ErrNoTransport = errors.New("no transport to counterpart frame")

// Transport delivers raw messages to the counterpart frame
type Transport interface {
	Post(data []byte, targetOrigin string) error
}

// Envelope is an inbound message as seen by the receiving frame
type Envelope struct {
	Origin string
	Source string
	Data   []byte
}

// Handler processes one decoded message
type Handler func(protocol.Message)

// Options configures an Endpoint
type Options struct {
	// TargetOrigin is passed with every transmission and is the only origin
	// accepted on receive. AnyOrigin accepts any.
	TargetOrigin string
	// Source identifies the counterpart window; envelopes from any other
	// source are discarded. Empty accepts any source.
	Source string
	// Immediate starts the endpoint in the ready state
	Immediate bool
	Sink      logging.Sink
}

// Endpoint is one frame's half of the channel. It is not safe for concurrent
// use; drive it from the frame's loop.
type Endpoint struct {
	transport Transport
	opts      Options
	ready     bool
	queue     []protocol.Message
	handlers  map[protocol.Type]Handler
	sink      logging.Sink
}

// New creates an endpoint. transport may be nil until the counterpart mounts.
func New(transport Transport, opts Options) *Endpoint {
	if opts.TargetOrigin == "" {
		opts.TargetOrigin = AnyOrigin
	}
	sink := opts.Sink
	if sink == nil {
		sink = logging.NopSink{}
	}
	return &Endpoint{
		transport: transport,
		opts:      opts,
		ready:     opts.Immediate,
		handlers:  make(map[protocol.Type]Handler),
		sink:      sink,
	}
}

// SetTransport attaches or replaces the transport
func (e *Endpoint) SetTransport(t Transport) {
	e.transport = t
}

// TargetOrigin returns the origin used for every transmission
func (e *Endpoint) TargetOrigin() string {
	return e.opts.TargetOrigin
}

// Handle registers fn for messages tagged t, replacing any previous handler
func (e *Endpoint) Handle(t protocol.Type, fn Handler) {
	e.handlers[t] = fn
}

// Ready reports whether the handshake has completed
func (e *Endpoint) Ready() bool {
	return e.ready
}

// Queued returns the number of messages waiting for the handshake
func (e *Endpoint) Queued() int {
	return len(e.queue)
}

// Send transmits m, or queues it if the handshake is still pending
func (e *Endpoint) Send(m protocol.Message) error {
	if !e.ready {
		e.queue = append(e.queue, m)
		e.sink.Event("channel.queue", zap.String("type", string(m.MessageType())), zap.Int("depth", len(e.queue)))
		return nil
	}
	return e.Post(m)
}

// Post transmits m immediately regardless of handshake state. A missing
// transport drops the message, matching a frame that is not mounted yet.
func (e *Endpoint) Post(m protocol.Message) error {
	if e.transport == nil {
		e.sink.Event("channel.drop", zap.String("type", string(m.MessageType())), zap.String("reason", "no-transport"))
		return ErrNoTransport
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := e.transport.Post(data, e.opts.TargetOrigin); err != nil {
		return fmt.Errorf("post %s: %w", m.MessageType(), err)
	}
	return nil
}

// MarkReady completes the handshake and flushes queued messages in order.
// Later calls are no-ops.
func (e *Endpoint) MarkReady() error {
	if e.ready {
		return nil
	}
	e.ready = true

	queued := e.queue
	e.queue = nil
	e.sink.Event("channel.flush", zap.Int("count", len(queued)))

	var errs []error
	for _, m := range queued {
		if err := e.Post(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Receive filters, decodes and dispatches an inbound envelope. Foreign,
// malformed and unknown messages are dropped.
func (e *Endpoint) Receive(env Envelope) {
	if e.opts.TargetOrigin != AnyOrigin && env.Origin != e.opts.TargetOrigin {
		e.sink.Event("channel.reject", zap.String("reason", "origin"), zap.String("origin", env.Origin))
		return
	}
	if e.opts.Source != "" && env.Source != e.opts.Source {
		e.sink.Event("channel.reject", zap.String("reason", "source"), zap.String("source", env.Source))
		return
	}

	msg, err := protocol.Decode(env.Data)
	if err != nil {
		e.sink.Event("channel.reject", zap.String("reason", "decode"), zap.Error(err))
		return
	}

	handler, ok := e.handlers[msg.MessageType()]
	if !ok {
		e.sink.Event("channel.unhandled", zap.String("type", string(msg.MessageType())))
		return
	}
	handler(msg)
}
