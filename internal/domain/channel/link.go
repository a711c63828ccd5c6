package channel

import (
	"sync"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
)

// Link is an in-process Transport. Messages are delivered asynchronously on
// the receiving frame's scheduler with postMessage semantics: a target origin
// that does not match the receiver drops the message silently.
type Link struct {
	// SenderOrigin is stamped on every delivered envelope
	SenderOrigin string
	// SenderSource identifies the sending window to the receiver
	SenderSource string
	// ReceiverOrigin is the receiving frame's own origin
	ReceiverOrigin string
	// Receiver runs on the receiving frame
	Receiver  func(Envelope)
	Scheduler frame.Scheduler
}

func (l *Link) Post(data []byte, targetOrigin string) error {
	if targetOrigin != AnyOrigin && targetOrigin != l.ReceiverOrigin {
		return nil
	}
	payload := append([]byte(nil), data...)
	env := Envelope{Origin: l.SenderOrigin, Source: l.SenderSource, Data: payload}
	l.Scheduler.Post(func() {
		if l.Receiver != nil {
			l.Receiver(env)
		}
	})
	return nil
}

// Posted is one transmission captured by a Recorder
type Posted struct {
	Data         []byte
	TargetOrigin string
}

// Recorder is a Transport that keeps every transmission
type Recorder struct {
	mu    sync.Mutex
	posts []Posted
	Err   error
}

func (r *Recorder) Post(data []byte, targetOrigin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.posts = append(r.posts, Posted{Data: append([]byte(nil), data...), TargetOrigin: targetOrigin})
	return nil
}

// Posts returns a copy of the captured transmissions
func (r *Recorder) Posts() []Posted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Posted(nil), r.posts...)
}

// Messages decodes the captured transmissions, skipping undecodable ones
func (r *Recorder) Messages() []protocol.Message {
	var out []protocol.Message
	for _, p := range r.Posts() {
		if m, err := protocol.Decode(p.Data); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// OfType returns captured messages tagged t
func (r *Recorder) OfType(t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range r.Messages() {
		if m.MessageType() == t {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets captured transmissions
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = nil
}
