// Package store is the experiment store behind POST /api/widget/experiments.
// It owns widget configurations and one experiment per (widget, path), and
// enforces the control-token authorisation rules for writes.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
)

// ErrNotFound is returned for unknown widgets and experiments
var ErrNotFound = errors.New("store: not found")

// Repository persists widgets and experiments
type Repository interface {
	Widget(ctx context.Context, token string) (*experiment.WidgetConfig, error)
	SaveWidget(ctx context.Context, cfg experiment.WidgetConfig) error
	Widgets(ctx context.Context) ([]experiment.WidgetConfig, error)
	Experiment(ctx context.Context, token, path string) (*experiment.Snapshot, error)
	// UpsertExperiment stores snap under (token, snap.Path). An existing
	// record keeps its id.
	UpsertExperiment(ctx context.Context, token string, snap experiment.Snapshot) (*experiment.Snapshot, error)
	Close() error
}

type experimentKey struct {
	token string
	path  string
}

// MemoryRepository keeps everything in process memory
type MemoryRepository struct {
	mu          sync.RWMutex
	widgets     map[string]experiment.WidgetConfig
	experiments map[experimentKey]experiment.Snapshot
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		widgets:     make(map[string]experiment.WidgetConfig),
		experiments: make(map[experimentKey]experiment.Snapshot),
	}
}

func (r *MemoryRepository) Widget(_ context.Context, token string) (*experiment.WidgetConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.widgets[token]
	if !ok {
		return nil, ErrNotFound
	}
	cfg.Experiment = nil
	return &cfg, nil
}

func (r *MemoryRepository) SaveWidget(_ context.Context, cfg experiment.WidgetConfig) error {
	if cfg.Token == "" {
		return errors.New("store: widget token is required")
	}
	cfg.Experiment = nil
	r.mu.Lock()
	r.widgets[cfg.Token] = cfg
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Widgets(context.Context) ([]experiment.WidgetConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]experiment.WidgetConfig, 0, len(r.widgets))
	for _, cfg := range r.widgets {
		out = append(out, cfg)
	}
	return out, nil
}

func (r *MemoryRepository) Experiment(_ context.Context, token, path string) (*experiment.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.experiments[experimentKey{token, path}]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (r *MemoryRepository) UpsertExperiment(_ context.Context, token string, snap experiment.Snapshot) (*experiment.Snapshot, error) {
	key := experimentKey{token, snap.Path}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.widgets[token]; !ok {
		return nil, ErrNotFound
	}
	if existing, ok := r.experiments[key]; ok {
		snap.ID = existing.ID
	}
	r.experiments[key] = snap
	return &snap, nil
}

func (r *MemoryRepository) Close() error { return nil }
