// Package experiment holds the widget configuration and experiment records
// shared by the widget and the store, and the HTTP client the widget uses to
// persist headline tests.
package experiment

import (
	"net/url"
	"strings"
	"time"
)

// Status is an experiment's lifecycle state
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused:
		return true
	}
	return false
}

// Label is the capitalised status used in transcript notes
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusPaused:
		return "Paused"
	default:
		return "Draft"
	}
}

// WidgetStatus enables or disables a widget
type WidgetStatus string

const (
	WidgetActive   WidgetStatus = "active"
	WidgetDisabled WidgetStatus = "disabled"
)

// Action selects update or reset semantics for an upsert
type Action string

const (
	ActionUpdate Action = "update"
	ActionReset  Action = "reset"
)

// DefaultStatus is the status an upsert gets when none is given
func (a Action) DefaultStatus() Status {
	if a == ActionReset {
		return StatusPaused
	}
	return StatusDraft
}

// Snapshot is a persisted headline test. The widget replaces its copy
// wholesale on every successful save.
type Snapshot struct {
	ID              string    `json:"id" yaml:"id" toml:"id"`
	Path            string    `json:"path" yaml:"path" toml:"path"`
	Status          Status    `json:"status" yaml:"status" toml:"status"`
	Selector        *string   `json:"selector" yaml:"selector" toml:"selector"`
	ControlHeadline *string   `json:"controlHeadline" yaml:"controlHeadline" toml:"controlHeadline"`
	VariantHeadline *string   `json:"variantHeadline" yaml:"variantHeadline" toml:"variantHeadline"`
	AuthorLabel     *string   `json:"authorLabel" yaml:"authorLabel" toml:"authorLabel"`
	UpdatedAt       time.Time `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
}

// HasVariant reports whether s carries a non-empty variant headline
func (s *Snapshot) HasVariant() bool {
	return s != nil && s.VariantHeadline != nil && *s.VariantHeadline != ""
}

// WidgetConfig is loaded once per widget session
type WidgetConfig struct {
	Token        string       `json:"token" yaml:"token" toml:"token"`
	SiteName     string       `json:"siteName" yaml:"siteName" toml:"siteName"`
	SiteURL      *string      `json:"siteUrl,omitempty" yaml:"siteUrl" toml:"siteUrl"`
	Status       WidgetStatus `json:"status" yaml:"status" toml:"status"`
	ControlToken *string      `json:"controlToken" yaml:"controlToken" toml:"controlToken"`
	Experiment   *Snapshot    `json:"experiment" yaml:"experiment" toml:"experiment"`
}

// Public strips the control token for configs served to anonymous callers
func (c WidgetConfig) Public() WidgetConfig {
	c.ControlToken = nil
	return c
}

// DemoConfig is the configuration served for the demo token
func DemoConfig() WidgetConfig {
	siteURL := "http://localhost:3001"
	control := "demo-control-token"
	return WidgetConfig{
		Token:        "demo",
		SiteName:     "Demo Workspace",
		SiteURL:      &siteURL,
		Status:       WidgetActive,
		ControlToken: &control,
	}
}

// UpsertRequest is the body of POST /api/widget/experiments
type UpsertRequest struct {
	Token           string  `json:"token"`
	Path            string  `json:"path"`
	Selector        *string `json:"selector"`
	ControlHeadline string  `json:"controlHeadline"`
	VariantHeadline *string `json:"variantHeadline"`
	Status          *Status `json:"status,omitempty"`
	Action          Action  `json:"action"`
	AuthorLabel     *string `json:"authorLabel,omitempty"`
}

// UpsertResponse is the success body of POST /api/widget/experiments
type UpsertResponse struct {
	Experiment *Snapshot `json:"experiment"`
}

// NormalizeToken trims a widget token. Blank tokens report false.
func NormalizeToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	return token, token != ""
}

// NormalizePath reduces a path or URL to its pathname. Blank input
// reports false.
func NormalizePath(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", false
	}
	base := &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	if ref, err := url.Parse(path); err == nil {
		if p := base.ResolveReference(ref).Path; p != "" {
			return p, true
		}
		return "/", true
	}
	if strings.HasPrefix(path, "/") {
		return path, true
	}
	return "/" + path, true
}

// ResolvePath picks the path an experiment is stored under: the explicit
// argument, then the path last reported by the host page, then the headline
// context, then the widget's own location, then "/".
func ResolvePath(explicit, host, context *string, location string) string {
	for _, candidate := range []*string{explicit, host, context} {
		if candidate != nil && *candidate != "" {
			return *candidate
		}
	}
	if location != "" {
		return location
	}
	return "/"
}
