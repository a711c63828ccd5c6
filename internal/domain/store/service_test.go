package store

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/apperr"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoControl = "demo-control-token"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func str(s string) *string { return &s }

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ExperimentUpserted(action experiment.Action, code string) {
	o.calls = append(o.calls, string(action)+"/"+code)
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqlite,
	}
}

func newService(t *testing.T, repo Repository, obs Observer) *Service {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, NewSeeder(repo, nil).SeedDefaults(ctx))
	require.NoError(t, repo.SaveWidget(ctx, experiment.WidgetConfig{Token: "open", SiteName: "No Control", Status: experiment.WidgetActive}))
	return NewService(repo, Options{
		IDs:      id.Sequence("exp"),
		Now:      func() time.Time { return fixedNow },
		Observer: obs,
	})
}

func update(variant string) experiment.UpsertRequest {
	return experiment.UpsertRequest{
		Token:           "demo",
		Path:            "/",
		Selector:        str(`[data-headlinetester-target="headline"]`),
		ControlHeadline: "Original headline",
		VariantHeadline: str(variant),
		Action:          experiment.ActionUpdate,
	}
}

func TestUpsertErrors(t *testing.T) {
	tests := []struct {
		name    string
		bearer  string
		req     func() experiment.UpsertRequest
		code    apperr.Code
		message string
	}{
		{
			name:    "missing bearer",
			req:     func() experiment.UpsertRequest { return update("New headline") },
			code:    apperr.Unauthorized,
			message: MsgMissingControlToken,
		},
		{
			name:    "wrong bearer",
			bearer:  "invalid-token",
			req:     func() experiment.UpsertRequest { return update("New headline") },
			code:    apperr.Forbidden,
			message: MsgInvalidControlToken,
		},
		{
			name: "blank variant is validated before auth",
			req:  func() experiment.UpsertRequest { return update("   ") },
			code: apperr.BadRequest,
		},
		{
			name:   "unknown action",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.Action = "delete"
				return r
			},
			code: apperr.BadRequest,
		},
		{
			name:   "unknown status",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				s := experiment.Status("archived")
				r.Status = &s
				return r
			},
			code: apperr.BadRequest,
		},
		{
			name:   "blank token",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.Token = "  "
				return r
			},
			code:    apperr.BadRequest,
			message: MsgInvalidTokenOrPath,
		},
		{
			name:   "blank path",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.Path = ""
				return r
			},
			code:    apperr.BadRequest,
			message: MsgInvalidTokenOrPath,
		},
		{
			name:   "unknown widget",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.Token = "nobody"
				return r
			},
			code:    apperr.NotFound,
			message: MsgWidgetNotFound,
		},
		{
			name:   "widget without control token",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.Token = "open"
				return r
			},
			code:    apperr.Forbidden,
			message: MsgControlNotConfigured,
		},
		{
			name:   "blank control headline",
			bearer: demoControl,
			req: func() experiment.UpsertRequest {
				r := update("x")
				r.ControlHeadline = " \t "
				return r
			},
			code:    apperr.BadRequest,
			message: MsgControlRequired,
		},
		{
			name:    "variant that is only whitespace",
			bearer:  demoControl,
			req:     func() experiment.UpsertRequest { return update("\n\t ") },
			code:    apperr.BadRequest,
			message: MsgVariantRequired,
		},
	}

	for name, repo := range repositories(t) {
		svc := newService(t, repo, nil)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				snap, err := svc.Upsert(context.Background(), tt.bearer, tt.req())
				require.Error(t, err)
				assert.Nil(t, snap)
				e := apperr.From(err)
				assert.Equal(t, tt.code, e.Code)
				if tt.message != "" {
					assert.Equal(t, tt.message, e.Message)
				}
			})
		}
	}
}

func TestUpsertDraftThenReset(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			obs := &recordingObserver{}
			svc := newService(t, repo, obs)
			ctx := context.Background()

			_, err := svc.Upsert(ctx, "Bearer-less "+demoControl, update("New headline"))
			require.Error(t, err, "bearer must match exactly")

			saved, err := svc.Upsert(ctx, "  "+demoControl+"  ", update("  New headline "))
			require.NoError(t, err)
			assert.Equal(t, "exp-1", saved.ID)
			assert.Equal(t, "/", saved.Path)
			assert.Equal(t, experiment.StatusDraft, saved.Status)
			assert.Equal(t, "Original headline", *saved.ControlHeadline)
			assert.Equal(t, "New headline", *saved.VariantHeadline)
			assert.Equal(t, `[data-headlinetester-target="headline"]`, *saved.Selector)
			assert.True(t, saved.UpdatedAt.Equal(fixedNow))

			reset := update("ignored")
			reset.Action = experiment.ActionReset
			reset.VariantHeadline = nil
			reset.Path = "https://shop.example/?utm=1"
			paused, err := svc.Upsert(ctx, demoControl, reset)
			require.NoError(t, err)
			assert.Equal(t, "exp-1", paused.ID, "same (widget, path) keeps its id")
			assert.Equal(t, experiment.StatusPaused, paused.Status)
			assert.Nil(t, paused.VariantHeadline)

			stored, err := repo.Experiment(ctx, "demo", "/")
			require.NoError(t, err)
			assert.Equal(t, experiment.StatusPaused, stored.Status)

			assert.Equal(t, []string{"update/forbidden:api", "update/ok", "reset/ok"}, obs.calls)
		})
	}
}

func TestUpsertNormalisesInput(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, repo, nil)
			active := experiment.StatusActive
			req := experiment.UpsertRequest{
				Token:           " demo ",
				Path:            "pricing",
				Selector:        str("   "),
				ControlHeadline: "  Tom &amp; Jerry ",
				VariantHeadline: str("<b>Bold</b> & brave"),
				Status:          &active,
				AuthorLabel:     str("  <b>Ada</b> &amp; co  "),
			}

			saved, err := svc.Upsert(context.Background(), demoControl, req)
			require.NoError(t, err)
			assert.Equal(t, "/pricing", saved.Path)
			assert.Nil(t, saved.Selector)
			assert.Equal(t, "Tom &amp; Jerry", *saved.ControlHeadline, "headlines keep their literal text")
			assert.Equal(t, "<b>Bold</b> & brave", *saved.VariantHeadline)
			assert.Equal(t, experiment.StatusActive, saved.Status)
			assert.Equal(t, "Ada & co", *saved.AuthorLabel)
		})
	}
}

func TestConfig(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, repo, nil)
			ctx := context.Background()

			cfg, err := svc.Config(ctx, "demo", "/")
			require.NoError(t, err)
			assert.Equal(t, "Demo Workspace", cfg.SiteName)
			assert.Nil(t, cfg.ControlToken, "control token never leaves the server")
			assert.Nil(t, cfg.Experiment)

			_, err = svc.Upsert(ctx, demoControl, update("New headline"))
			require.NoError(t, err)

			cfg, err = svc.Config(ctx, "demo", "/")
			require.NoError(t, err)
			require.NotNil(t, cfg.Experiment)
			assert.Equal(t, "New headline", *cfg.Experiment.VariantHeadline)

			full, err := svc.WidgetConfig(ctx, "demo", "/")
			require.NoError(t, err)
			assert.Equal(t, demoControl, *full.ControlToken)
			assert.NotNil(t, full.Experiment)

			_, err = svc.Config(ctx, "nobody", "/")
			assert.True(t, apperr.Is(err, apperr.NotFound))
			_, err = svc.Config(ctx, "", "/")
			assert.True(t, apperr.Is(err, apperr.BadRequest))
		})
	}
}
