package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/shared/id"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// SeedFile is the on-disk widget list
type SeedFile struct {
	Widgets []experiment.WidgetConfig `yaml:"widgets" toml:"widgets"`
}

// Seeder loads widget configurations into a repository
type Seeder struct {
	repo   Repository
	logger *logging.Logger
}

// NewSeeder creates a seeder
func NewSeeder(repo Repository, logger *logging.Logger) *Seeder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Seeder{repo: repo, logger: logger.Named("seeder")}
}

// ParseSeed decodes a widget list, picking YAML or TOML by file extension
func ParseSeed(name string, data []byte) (*SeedFile, error) {
	var seed SeedFile
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &seed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported seed format %q", filepath.Ext(name))
	}
	return &seed, nil
}

// SeedFromFile loads every widget in path. A missing file is not an error.
func (s *Seeder) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Warn("Widget seed file not found", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	seed, err := ParseSeed(path, data)
	if err != nil {
		return 0, err
	}

	var loaded, failed int
	for _, cfg := range seed.Widgets {
		if err := s.seedWidget(ctx, cfg); err != nil {
			s.logger.Warn("Failed to seed widget", zap.String("token", cfg.Token), zap.Error(err))
			failed++
			continue
		}
		loaded++
	}
	s.logger.Info("Seeding complete", zap.String("path", path), zap.Int("loaded", loaded), zap.Int("failed", failed))
	return loaded, nil
}

func (s *Seeder) seedWidget(ctx context.Context, cfg experiment.WidgetConfig) error {
	token, ok := experiment.NormalizeToken(cfg.Token)
	if !ok || cfg.SiteName == "" {
		return fmt.Errorf("widget missing required fields (token, siteName)")
	}
	cfg.Token = token
	if cfg.Status == "" {
		cfg.Status = experiment.WidgetActive
	}
	if err := s.repo.SaveWidget(ctx, cfg); err != nil {
		return err
	}

	exp := cfg.Experiment
	if exp == nil {
		return nil
	}
	path, ok := experiment.NormalizePath(exp.Path)
	if !ok {
		return fmt.Errorf("experiment missing path")
	}
	snap := *exp
	snap.Path = path
	if snap.ID == "" {
		snap.ID = id.NewExperimentID().String()
	}
	if !snap.Status.Valid() {
		snap.Status = experiment.StatusDraft
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	_, err := s.repo.UpsertExperiment(ctx, token, snap)
	return err
}

// SeedDefaults creates the demo widget if it does not exist
func (s *Seeder) SeedDefaults(ctx context.Context) error {
	demo := experiment.DemoConfig()
	if _, err := s.repo.Widget(ctx, demo.Token); err == nil {
		return nil
	}
	if err := s.repo.SaveWidget(ctx, demo); err != nil {
		return fmt.Errorf("failed to seed demo widget: %w", err)
	}
	s.logger.Info("Seeded demo widget", zap.String("token", demo.Token))
	return nil
}
