// Package id generates prefixed, lexicographically sortable ULIDs.
//
// Prefixes keep the different identifiers apart in logs and transcripts:
// req_ for headline mutation requests, evt_ for conversation events and
// exp_ for stored experiments.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID correlates an UpdateHeadline with its acknowledgement
type RequestID string

// EventID identifies a queued headline event
type EventID string

// ExperimentID identifies a stored experiment
type ExperimentID string

const (
	RequestPrefix    = "req"
	EventPrefix      = "evt"
	ExperimentPrefix = "exp"
)

// Source produces fresh identifiers. Controllers take one so tests can
// supply deterministic ids.
type Source func() string

// Generator is safe for concurrent use
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator uses crypto/rand entropy, monotonic within a millisecond
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

// NewGeneratorWithEntropy makes ids reproducible for tests
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate returns a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// WithPrefix returns "<prefix>_<ulid>"
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// Prefixed returns a Source that emits ids under prefix
func (g *Generator) Prefixed(prefix string) Source {
	return func() string { return g.WithPrefix(prefix) }
}

func NewRequestID() RequestID       { return RequestID(Default().WithPrefix(RequestPrefix)) }
func NewEventID() EventID           { return EventID(Default().WithPrefix(EventPrefix)) }
func NewExperimentID() ExperimentID { return ExperimentID(Default().WithPrefix(ExperimentPrefix)) }

func (id RequestID) String() string    { return string(id) }
func (id EventID) String() string      { return string(id) }
func (id ExperimentID) String() string { return string(id) }

// Sequence returns a Source yielding prefix-1, prefix-2, ... for tests
func Sequence(prefix string) Source {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// Split separates a prefixed id. ok is false when the ULID part is invalid.
func Split(id string) (prefix string, value ulid.ULID, ok bool) {
	prefix, raw, found := strings.Cut(id, "_")
	if !found {
		raw, prefix = prefix, ""
	}
	value, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, false
	}
	return prefix, value, true
}

// Timestamp extracts the creation time of a prefixed or bare id
func Timestamp(id string) (time.Time, error) {
	_, value, ok := Split(id)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid id %q", id)
	}
	return ulid.Time(value.Time()), nil
}
