package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlSeed = `
widgets:
  - token: " acme "
    siteName: Acme Shop
    siteUrl: https://shop.example
    controlToken: acme-secret
    experiment:
      path: pricing
      status: active
      controlHeadline: Old copy
      variantHeadline: New copy
  - token: ""
    siteName: Broken
`

const tomlSeed = `
[[widgets]]
token = "beta"
siteName = "Beta"
status = "disabled"
`

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedFromYAML(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			n, err := NewSeeder(repo, nil).SeedFromFile(ctx, writeSeed(t, "widgets.yaml", yamlSeed))
			require.NoError(t, err)
			assert.Equal(t, 1, n, "entries without a token are skipped")

			cfg, err := repo.Widget(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, "Acme Shop", cfg.SiteName)
			assert.Equal(t, experiment.WidgetActive, cfg.Status)
			assert.Equal(t, "acme-secret", *cfg.ControlToken)

			snap, err := repo.Experiment(ctx, "acme", "/pricing")
			require.NoError(t, err)
			assert.Equal(t, experiment.StatusActive, snap.Status)
			assert.Equal(t, "New copy", *snap.VariantHeadline)
			assert.NotEmpty(t, snap.ID)
		})
	}
}

func TestSeedFromTOML(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	n, err := NewSeeder(repo, nil).SeedFromFile(ctx, writeSeed(t, "widgets.toml", tomlSeed))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cfg, err := repo.Widget(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, experiment.WidgetDisabled, cfg.Status)
	assert.Nil(t, cfg.ControlToken)
}

func TestSeedMissingFileAndFormat(t *testing.T) {
	s := NewSeeder(NewMemoryRepository(), nil)
	n, err := s.SeedFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ParseSeed("widgets.json", []byte(`{}`))
	assert.Error(t, err)
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	s := NewSeeder(repo, nil)
	require.NoError(t, s.SeedDefaults(ctx))

	custom := experiment.DemoConfig()
	custom.SiteName = "Renamed"
	require.NoError(t, repo.SaveWidget(ctx, custom))
	require.NoError(t, s.SeedDefaults(ctx))

	cfg, err := repo.Widget(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", cfg.SiteName)
}
