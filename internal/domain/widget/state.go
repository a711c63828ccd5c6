package widget

import (
	"errors"
	"strings"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
)

// SuccessDisplay is how long a successful headline change stays visible
// before the status falls back to idle
const SuccessDisplay = 1800 * time.Millisecond

// User-facing status messages
const (
	MsgNoHeadline   = "No headline available to rewrite yet."
	MsgNoOriginal   = "No saved headline to restore."
	MsgNotFound     = "Headline element not found on this page."
	MsgUpdateFailed = "Unable to update the headline."
	MsgSaveFailed   = "Unable to save experiment."
)

// SourceHost identifies the host window on inbound envelopes
const SourceHost = "host"

var (
	// ErrRequestPending rejects a mutation while another is in flight
	ErrRequestPending = errors.New("headline request already pending")
	// ErrNoOriginal rejects a reset before the original text is known
	ErrNoOriginal = errors.New("no original headline to restore")
	// ErrNoHeadline rejects a rewrite request with nothing to rewrite
	ErrNoHeadline = errors.New("no headline available")
)

// HeadlineStatus tracks the mutation lifecycle shown next to the headline
type HeadlineStatus string

const (
	HeadlineIdle    HeadlineStatus = "idle"
	HeadlinePending HeadlineStatus = "pending"
	HeadlineSuccess HeadlineStatus = "success"
	HeadlineError   HeadlineStatus = "error"
)

// ExperimentStatus tracks the persistence lifecycle
type ExperimentStatus string

const (
	ExperimentIdle    ExperimentStatus = "idle"
	ExperimentSaving  ExperimentStatus = "saving"
	ExperimentSuccess ExperimentStatus = "success"
	ExperimentError   ExperimentStatus = "error"
)

// HeadlineContext is the widget's copy of the host headline. OriginalText
// never changes once set.
type HeadlineContext struct {
	Selector     *string
	Text         *string
	OriginalText *string
	Found        bool
	Path         *string
	URL          *string
}

// Baseline returns the text a rewrite starts from
func (c HeadlineContext) Baseline() string {
	if c.Text != nil {
		return strings.TrimSpace(*c.Text)
	}
	return strings.TrimSpace(protocol.Deref(c.OriginalText))
}

// EventKind categorises headline events surfaced to the conversation
type EventKind string

const (
	EventRewriteRequest  EventKind = "rewrite-request"
	EventApplied         EventKind = "applied"
	EventExperimentSaved EventKind = "experiment-saved"
	EventExperimentError EventKind = "experiment-error"
)

// Event is a notable headline event waiting to be consumed. Which fields are
// set depends on Kind.
type Event struct {
	ID   string
	Kind EventKind

	// rewrite-request and applied
	Text     *string
	Selector *string
	// applied
	Action protocol.Action
	// experiment-saved
	Path            *string
	ControlHeadline *string
	VariantHeadline *string
	Status          experiment.Status
	// experiment-error
	Message string
}
