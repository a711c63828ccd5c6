package store

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/id"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Client-facing messages
const (
	MsgMissingControlToken  = "Missing widget control token."
	MsgInvalidTokenOrPath   = "Invalid widget token or path."
	MsgWidgetNotFound       = "Widget configuration not found."
	MsgControlNotConfigured = "Widget control token is not configured."
	MsgInvalidControlToken  = "Invalid widget control token."
	MsgControlRequired      = "Control headline is required."
	MsgVariantRequired      = "Variant headline is required."
	MsgSaveFailed           = "Unable to save widget experiment."
)

// Observer is told the outcome of every upsert
type Observer interface {
	ExperimentUpserted(action experiment.Action, code string)
}

// Options configures a Service
type Options struct {
	IDs      id.Source
	Now      func() time.Time
	Logger   *logging.Logger
	Observer Observer
}

// Service applies the experiment write rules over a Repository
type Service struct {
	repo     Repository
	ids      id.Source
	now      func() time.Time
	logger   *logging.Logger
	observer Observer
	policy   *bluemonday.Policy
}

// NewService creates a service over repo
func NewService(repo Repository, opts Options) *Service {
	if opts.IDs == nil {
		opts.IDs = id.Default().Prefixed(id.ExperimentPrefix)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Service{
		repo:     repo,
		ids:      opts.IDs,
		now:      opts.Now,
		logger:   opts.Logger.Named("store"),
		observer: opts.Observer,
		policy:   bluemonday.StrictPolicy(),
	}
}

// Repository returns the backing repository
func (s *Service) Repository() Repository { return s.repo }

// Upsert validates and stores an experiment on behalf of the holder of
// controlToken. Failures are *apperr.Error values.
func (s *Service) Upsert(ctx context.Context, controlToken string, req experiment.UpsertRequest) (*experiment.Snapshot, error) {
	action := req.Action
	if action == "" {
		action = experiment.ActionUpdate
	}
	snap, err := s.upsert(ctx, strings.TrimSpace(controlToken), action, req)
	if s.observer != nil {
		code := "ok"
		if err != nil {
			code = string(apperr.From(err).Code)
		}
		s.observer.ExperimentUpserted(action, code)
	}
	return snap, err
}

func (s *Service) upsert(ctx context.Context, controlToken string, action experiment.Action, req experiment.UpsertRequest) (*experiment.Snapshot, error) {
	if action != experiment.ActionUpdate && action != experiment.ActionReset {
		return nil, apperr.New(apperr.BadRequest, "")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, apperr.New(apperr.BadRequest, "")
	}
	if action == experiment.ActionUpdate && blank(req.VariantHeadline) {
		return nil, apperr.New(apperr.BadRequest, "")
	}
	if controlToken == "" {
		return nil, apperr.New(apperr.Unauthorized, MsgMissingControlToken)
	}

	token, okToken := experiment.NormalizeToken(req.Token)
	path, okPath := experiment.NormalizePath(req.Path)
	if !okToken || !okPath {
		return nil, apperr.New(apperr.BadRequest, MsgInvalidTokenOrPath)
	}

	cfg, err := s.repo.Widget(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, MsgWidgetNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to load widget", zap.String("token", token), zap.Error(err))
		return nil, apperr.Wrap(apperr.BadRequest, MsgSaveFailed, err)
	}
	if blank(cfg.ControlToken) {
		return nil, apperr.New(apperr.Forbidden, MsgControlNotConfigured)
	}
	if *cfg.ControlToken != controlToken {
		return nil, apperr.New(apperr.Forbidden, MsgInvalidControlToken)
	}

	control := strings.TrimSpace(req.ControlHeadline)
	if control == "" {
		return nil, apperr.New(apperr.BadRequest, MsgControlRequired)
	}
	var variant *string
	if action == experiment.ActionUpdate && req.VariantHeadline != nil {
		v := strings.TrimSpace(*req.VariantHeadline)
		variant = &v
	}
	if action == experiment.ActionUpdate && blank(variant) {
		return nil, apperr.New(apperr.BadRequest, MsgVariantRequired)
	}

	status := action.DefaultStatus()
	if req.Status != nil {
		status = *req.Status
	}

	snap := experiment.Snapshot{
		ID:              s.ids(),
		Path:            path,
		Status:          status,
		Selector:        trimmedOrNil(req.Selector),
		ControlHeadline: &control,
		VariantHeadline: variant,
		UpdatedAt:       s.now().UTC(),
	}
	if req.AuthorLabel != nil {
		author := s.clean(*req.AuthorLabel)
		snap.AuthorLabel = &author
	}

	saved, err := s.repo.UpsertExperiment(ctx, token, snap)
	if err != nil {
		s.logger.Error("Failed to save experiment", zap.String("token", token), zap.String("path", path), zap.Error(err))
		return nil, apperr.Wrap(apperr.BadRequest, MsgSaveFailed, err)
	}
	s.logger.Info("Experiment saved",
		zap.String("token", token),
		zap.String("path", path),
		zap.String("id", saved.ID),
		zap.String("status", string(saved.Status)),
		zap.String("action", string(action)),
	)
	return saved, nil
}

// Config returns the public configuration for token with the experiment
// stored for path, if any
func (s *Service) Config(ctx context.Context, token, path string) (*experiment.WidgetConfig, error) {
	normalized, ok := experiment.NormalizeToken(token)
	if !ok {
		return nil, apperr.New(apperr.BadRequest, MsgInvalidTokenOrPath)
	}
	cfg, err := s.repo.Widget(ctx, normalized)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, MsgWidgetNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "", err)
	}

	if p, ok := experiment.NormalizePath(path); ok {
		snap, err := s.repo.Experiment(ctx, normalized, p)
		switch {
		case err == nil:
			cfg.Experiment = snap
		case !errors.Is(err, ErrNotFound):
			s.logger.Warn("Failed to load experiment", zap.String("token", normalized), zap.String("path", p), zap.Error(err))
		}
	}
	public := cfg.Public()
	return &public, nil
}

// WidgetConfig returns the full configuration, control token included, for
// the widget frame served by this backend
func (s *Service) WidgetConfig(ctx context.Context, token, path string) (*experiment.WidgetConfig, error) {
	public, err := s.Config(ctx, token, path)
	if err != nil {
		return nil, err
	}
	full, err := s.repo.Widget(ctx, public.Token)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "", err)
	}
	full.Experiment = public.Experiment
	return full, nil
}

// clean strips markup and surrounding space from an author label. Headlines
// are stored as typed since the widget writes them as DOM text.
func (s *Service) clean(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func trimmedOrNil(s *string) *string {
	if blank(s) {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
