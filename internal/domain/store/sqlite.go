package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS widgets (
	token         TEXT PRIMARY KEY,
	site_name     TEXT NOT NULL,
	site_url      TEXT,
	status        TEXT NOT NULL DEFAULT 'active',
	control_token TEXT
);
CREATE TABLE IF NOT EXISTS experiments (
	id               TEXT PRIMARY KEY,
	widget_token     TEXT NOT NULL REFERENCES widgets(token) ON DELETE CASCADE,
	path             TEXT NOT NULL,
	status           TEXT NOT NULL,
	selector         TEXT,
	control_headline TEXT,
	variant_headline TEXT,
	author_label     TEXT,
	updated_at       TEXT NOT NULL,
	UNIQUE (widget_token, path)
);
CREATE INDEX IF NOT EXISTS idx_experiments_updated ON experiments(updated_at);
`

// SQLiteRepository stores widgets and experiments in SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens dsn and applies the schema. An empty dsn opens a private
// in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteRepository, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Widget(ctx context.Context, token string) (*experiment.WidgetConfig, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT token, site_name, site_url, status, control_token FROM widgets WHERE token = ?`, token)

	var cfg experiment.WidgetConfig
	var siteURL, control sql.NullString
	var status string
	if err := row.Scan(&cfg.Token, &cfg.SiteName, &siteURL, &status, &control); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load widget: %w", err)
	}
	cfg.Status = experiment.WidgetStatus(status)
	cfg.SiteURL = fromNull(siteURL)
	cfg.ControlToken = fromNull(control)
	return &cfg, nil
}

func (r *SQLiteRepository) SaveWidget(ctx context.Context, cfg experiment.WidgetConfig) error {
	if cfg.Token == "" {
		return errors.New("store: widget token is required")
	}
	status := cfg.Status
	if status == "" {
		status = experiment.WidgetActive
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO widgets (token, site_name, site_url, status, control_token)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			site_name = excluded.site_name,
			site_url = excluded.site_url,
			status = excluded.status,
			control_token = excluded.control_token`,
		cfg.Token, cfg.SiteName, toNull(cfg.SiteURL), string(status), toNull(cfg.ControlToken))
	if err != nil {
		return fmt.Errorf("failed to save widget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Widgets(ctx context.Context) ([]experiment.WidgetConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, site_name, site_url, status, control_token FROM widgets ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}
	defer rows.Close()

	var out []experiment.WidgetConfig
	for rows.Next() {
		var cfg experiment.WidgetConfig
		var siteURL, control sql.NullString
		var status string
		if err := rows.Scan(&cfg.Token, &cfg.SiteName, &siteURL, &status, &control); err != nil {
			return nil, fmt.Errorf("failed to scan widget: %w", err)
		}
		cfg.Status = experiment.WidgetStatus(status)
		cfg.SiteURL = fromNull(siteURL)
		cfg.ControlToken = fromNull(control)
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Experiment(ctx context.Context, token, path string) (*experiment.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, status, selector, control_headline, variant_headline, author_label, updated_at
		FROM experiments WHERE widget_token = ? AND path = ?`, token, path)

	var snap experiment.Snapshot
	var status, updated string
	var selector, control, variant, author sql.NullString
	if err := row.Scan(&snap.ID, &snap.Path, &status, &selector, &control, &variant, &author, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w", updated, err)
	}
	snap.Status = experiment.Status(status)
	snap.Selector = fromNull(selector)
	snap.ControlHeadline = fromNull(control)
	snap.VariantHeadline = fromNull(variant)
	snap.AuthorLabel = fromNull(author)
	snap.UpdatedAt = ts.UTC()
	return &snap, nil
}

func (r *SQLiteRepository) UpsertExperiment(ctx context.Context, token string, snap experiment.Snapshot) (*experiment.Snapshot, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO experiments
			(id, widget_token, path, status, selector, control_headline, variant_headline, author_label, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(widget_token, path) DO UPDATE SET
			status = excluded.status,
			selector = excluded.selector,
			control_headline = excluded.control_headline,
			variant_headline = excluded.variant_headline,
			author_label = excluded.author_label,
			updated_at = excluded.updated_at`,
		snap.ID, token, snap.Path, string(snap.Status),
		toNull(snap.Selector), toNull(snap.ControlHeadline), toNull(snap.VariantHeadline), toNull(snap.AuthorLabel),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert experiment: %w", err)
	}
	return r.Experiment(ctx, token, snap.Path)
}

// Close releases the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
