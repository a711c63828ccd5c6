// Package conversation turns queued widget headline events into transcript
// entries. Rewrite requests become user turns for the assistant, everything
// else becomes a system note.
package conversation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/widget"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role of a transcript entry
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// RewritePrompt opens every rewrite request sent to the assistant
const RewritePrompt = "Rewrite this page headline to improve conversions."

// Entry is one transcript line
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	EventID   string    `json:"eventId"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventSource is the side of the widget controller the transcript reads
type EventSource interface {
	Events() []widget.Event
	ConsumeEvents(ids ...string)
}

// Render formats an event. Unknown kinds report false.
func Render(e widget.Event) (Role, string, bool) {
	switch e.Kind {
	case widget.EventRewriteRequest:
		return RoleUser, fmt.Sprintf("%s\nCurrent headline:\n\"%s\"", RewritePrompt, protocol.Deref(e.Text)), true

	case widget.EventApplied:
		label := "Applied new headline copy"
		if e.Action == protocol.ActionReset {
			label = "Reset headline to original copy"
		}
		selector := "headline"
		if e.Selector != nil {
			selector = *e.Selector
		}
		if text := protocol.Deref(e.Text); text != "" {
			return RoleSystem, fmt.Sprintf("%s (%s):\n%s", label, selector, text), true
		}
		return RoleSystem, fmt.Sprintf("%s (%s).", label, selector), true

	case widget.EventExperimentSaved:
		return RoleSystem, renderSaved(e), true

	case widget.EventExperimentError:
		return RoleSystem, "Failed to save headline test: " + e.Message, true
	}
	return "", "", false
}

func renderSaved(e widget.Event) string {
	where := "for this page"
	if p := protocol.Deref(e.Path); p != "" {
		where = "for " + p
	}
	lines := []string{fmt.Sprintf("%s headline test saved %s.", e.Status.Label(), where)}

	variant := protocol.Deref(e.VariantHeadline)
	if variant != "" {
		lines = append(lines, fmt.Sprintf("Variant: \"%s\".", variant))
	} else {
		lines = append(lines, "Variant cleared; using control copy.")
	}
	if control := protocol.Deref(e.ControlHeadline); control != "" && variant != "" {
		lines = append(lines, fmt.Sprintf("Control: \"%s\".", control))
	}
	if sel := protocol.Deref(e.Selector); sel != "" {
		lines = append(lines, fmt.Sprintf("Selector: %s.", sel))
	}
	return strings.Join(lines, "\n")
}

// Transcript accumulates rendered entries. It is safe for concurrent use.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	sink    logging.Sink
}

// New creates an empty transcript
func New(sink logging.Sink) *Transcript {
	if sink == nil {
		sink = logging.NopSink{}
	}
	return &Transcript{now: time.Now, sink: sink}
}

// Drain renders every queued event from src, appends the entries and marks
// the events consumed. Each event is consumed exactly once, including kinds
// that render nothing.
func (t *Transcript) Drain(src EventSource) []Entry {
	events := src.Events()
	if len(events) == 0 {
		return nil
	}

	added := make([]Entry, 0, len(events))
	consumed := make([]string, 0, len(events))
	for _, e := range events {
		consumed = append(consumed, e.ID)
		role, text, ok := Render(e)
		if !ok {
			t.sink.Event("conversation.event.skip", zap.String("id", e.ID), zap.String("kind", string(e.Kind)))
			continue
		}
		added = append(added, Entry{
			ID:        uuid.NewString(),
			Role:      role,
			Text:      text,
			EventID:   e.ID,
			CreatedAt: t.now().UTC(),
		})
	}
	src.ConsumeEvents(consumed...)

	t.mu.Lock()
	t.entries = append(t.entries, added...)
	t.mu.Unlock()
	t.sink.Event("conversation.drain", zap.Int("events", len(events)), zap.Int("entries", len(added)))
	return added
}

// Entries returns a copy of the transcript
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
