package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives structured debug events from the embed controllers.
// Controllers call it unconditionally; the sink decides whether to emit.
type Sink interface {
	Event(label string, fields ...zap.Field)
}

type zapSink struct {
	logger  *zap.Logger
	enabled bool
}

// NewSink returns a sink that writes debug events to logger under the
// "HeadlineTester.<component>" name, or discards them when disabled.
func NewSink(logger *Logger, component string, enabled bool) Sink {
	if logger == nil || !enabled {
		return NopSink{}
	}
	return &zapSink{
		logger:  logger.Logger.Named("HeadlineTester").Named(component),
		enabled: enabled,
	}
}

func (s *zapSink) Event(label string, fields ...zap.Field) {
	if !s.enabled {
		return
	}
	s.logger.Debug(label, fields...)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Event(string, ...zap.Field) {}

// Recorded is a single captured event.
type Recorded struct {
	Label  string
	Fields []zap.Field
}

// RecordingSink keeps events in memory. Used by tests and the embed harness.
type RecordingSink struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *RecordingSink) Event(label string, fields ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Label: label, Fields: fields})
}

// Labels returns the labels recorded so far, in order.
func (r *RecordingSink) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	labels := make([]string, len(r.events))
	for i, e := range r.events {
		labels[i] = e.Label
	}
	return labels
}
