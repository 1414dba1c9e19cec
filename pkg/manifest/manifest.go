// Package manifest loads and validates storagekit sync manifests.
//
// A sync manifest is a YAML or JSON file describing a repeatable
// cross-repository sync: source and target locations, object selection and
// sync behavior. Manifests are validated against an embedded JSON Schema
// that disallows unknown properties, then checked semantically (glob
// patterns, size and date bounds, path templates).
//
// Example manifest (YAML):
//
//	version: "1.0"
//	provider: s3
//	source:
//	  repository: raw-landing
//	  prefix: exports/2024/
//	target:
//	  repository: curated
//	  prefix: reports/
//	match:
//	  include:
//	    - "**/*.csv"
//	  exclude:
//	    - "**/_tmp/**"
//	filter:
//	  max_size: 500MB
//	sync:
//	  path_mode: preserve
//	  no_overwrite: true
package manifest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/storagekit/pkg/match"
	"github.com/3leaps/storagekit/pkg/storage"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// Version is the only supported manifest version.
const Version = "1.0"

// Manifest is a validated sync manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Provider optionally pins the provider tag ("s3", "azure", "gcs",
	// "file"). When empty the caller's configured provider is used.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	Source Location `json:"source" yaml:"source"`
	Target Location `json:"target" yaml:"target"`

	// Match selects source keys by glob. Empty selects everything.
	Match match.Config `json:"match,omitzero" yaml:"match,omitempty"`

	// Filter selects source objects by size, modification time or regex.
	Filter match.FilterConfig `json:"filter,omitzero" yaml:"filter,omitempty"`

	Sync SyncConfig `json:"sync,omitzero" yaml:"sync,omitempty"`
}

// Location is a repository and a key prefix within it.
type Location struct {
	Repository string `json:"repository" yaml:"repository"`
	Prefix     string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// String returns "repository/prefix".
func (l Location) String() string {
	return l.Repository + "/" + l.Prefix
}

// SyncConfig configures sync behavior.
type SyncConfig struct {
	// PathMode maps sources to targets: "flatten" (default) keeps only the
	// base name, "preserve" keeps the path relative to the source prefix.
	PathMode string `json:"path_mode,omitempty" yaml:"path_mode,omitempty"`

	// PathTemplate overrides PathMode, e.g. "{dir[0]}/{filename}".
	PathTemplate string `json:"path_template,omitempty" yaml:"path_template,omitempty"`

	// NoOverwrite fails items whose target exists instead of replacing it.
	NoOverwrite bool `json:"no_overwrite,omitempty" yaml:"no_overwrite,omitempty"`

	// DryRun plans targets without copying.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`

	// RateLimit caps copies per second (0 = unlimited).
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// IsZero reports whether no sync settings are present.
func (c SyncConfig) IsZero() bool {
	return c == SyncConfig{}
}

// ApplyDefaults fills optional fields with their defaults.
func (m *Manifest) ApplyDefaults() {
	if m.Sync.PathMode == "" && m.Sync.PathTemplate == "" {
		m.Sync.PathMode = string(transfer.PathFlatten)
	}
}

// Check validates what the schema cannot: glob syntax, filter bounds and
// the path mapping.
func (m *Manifest) Check() error {
	if _, err := match.New(m.Match); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if _, err := match.NewFilter(m.Filter); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if _, err := transfer.ParsePathMode(m.Sync.PathMode); err != nil {
		return fmt.Errorf("sync.path_mode: %w", err)
	}
	if m.Sync.PathTemplate != "" {
		if _, err := transfer.CompilePathTemplate(m.Sync.PathTemplate); err != nil {
			return fmt.Errorf("sync.path_template: %w", err)
		}
	}
	return nil
}

// EngineConfig returns the transfer engine configuration for the manifest.
func (m *Manifest) EngineConfig(logger *zap.Logger) transfer.Config {
	return transfer.Config{
		PathMode:     transfer.PathMode(m.Sync.PathMode),
		PathTemplate: m.Sync.PathTemplate,
		RateLimit:    m.Sync.RateLimit,
		Logger:       logger,
	}
}

// SyncOptions returns the storage sync options for the manifest's
// selection and behavior. Source and target are passed separately.
func (m *Manifest) SyncOptions() []storage.SyncOption {
	opts := []storage.SyncOption{storage.WithMatch(m.Match), storage.WithFilter(m.Filter)}
	if m.Sync.NoOverwrite {
		opts = append(opts, storage.NoOverwrite())
	}
	if m.Sync.DryRun {
		opts = append(opts, storage.DryRun())
	}
	return opts
}
