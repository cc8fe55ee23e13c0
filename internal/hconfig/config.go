// Package hconfig loads and validates the harvester.toml source list
// (spec.md §4.2), grounded on original_source/src/harvester/mod.rs's
// Config/Source and the teacher's internal/config/config.go load-and-
// validate-at-startup style.
package hconfig

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
)

// SourceType is the protocol a Source is harvested with.
type SourceType string

const (
	Ckan        SourceType = "ckan"
	Csw         SourceType = "csw"
	GeoNetworkQ SourceType = "geonetworkq"
	DorisBfs    SourceType = "doris_bfs"
	WasserDe    SourceType = "wasser_de"
	SmartFinder SourceType = "smart_finder"
	Manual      SourceType = "manual"
)

const (
	defaultConcurrency = 1
	defaultBatchSize   = 100
)

// Source is one harvester.toml entry.
type Source struct {
	Name        string     `toml:"name"`
	Type        SourceType `toml:"type"`
	URL         string     `toml:"url"`
	SourceURL   string     `toml:"source_url"`
	Filter      string     `toml:"filter"`
	Group       string     `toml:"group"`
	Concurrency int        `toml:"concurrency"`
	BatchSize   int        `toml:"batch_size"`
	Provenance  string     `toml:"provenance"`
	// Region is the catalogue's known coverage area, e.g. "Bayern"; most
	// catalogues serve a single region, so it is resolved once per source
	// rather than parsed per record.
	Region string `toml:"region"`
}

// ResolvedSourceURL fills the {{name}}/{{id}} placeholders in the
// source_url template, falling back to URL when no template is set
// (original_source's Source::source_url).
func (s Source) ResolvedSourceURL(id string) string {
	tmpl := s.SourceURL
	if tmpl == "" {
		return s.URL
	}
	r := strings.NewReplacer("{{name}}", s.Name, "{{id}}", id)
	return r.Replace(tmpl)
}

// License resolves the source's declared provenance license, if its
// provenance string happens to also be a license alias; most sources set
// provenance independently of license and normalize license per-record
// instead, so this is a convenience rarely used outside Manual sources.
func (s Source) License() dataset.License {
	return dataset.ParseLicense(s.Provenance)
}

// Config is the parsed, defaulted and validated harvester.toml.
type Config struct {
	Sources []Source `toml:"sources"`
}

// Load reads and validates path. Duplicate source names are a fatal
// configuration error (spec.md §4.2).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("read %s: %v", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, errs.Config("parse %s: %v", path, err)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Concurrency <= 0 {
			s.Concurrency = defaultConcurrency
		}
		if s.BatchSize <= 0 {
			s.BatchSize = defaultBatchSize
		}
		if s.Name == "" {
			return nil, errs.Config("source at index %d has no name", i)
		}
		if seen[s.Name] {
			return nil, errs.Config("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}

	return &cfg, nil
}

// Active partitions sources by group: sourceGroup empty means every
// source is active; otherwise only sources whose Group matches are
// active and the rest are inactive (spec.md §4.2).
func (c *Config) Active(sourceGroup string) (active, inactive []Source) {
	if sourceGroup == "" {
		return append([]Source(nil), c.Sources...), nil
	}
	for _, s := range c.Sources {
		if s.Group == sourceGroup {
			active = append(active, s)
		} else {
			inactive = append(inactive, s)
		}
	}
	return active, inactive
}

func validType(t SourceType) bool {
	switch t {
	case Ckan, Csw, GeoNetworkQ, DorisBfs, WasserDe, SmartFinder, Manual:
		return true
	default:
		return false
	}
}

// Validate checks every source has a recognized type; called separately
// from Load so callers can decide whether an unknown protocol type should
// be fatal or merely skip that source.
func (c *Config) Validate() error {
	for _, s := range c.Sources {
		if !validType(s.Type) {
			return errs.Config("source %q has unknown type %q", s.Name, s.Type)
		}
		if s.URL == "" && s.Type != Manual {
			return errs.Config("source %q has no url", s.Name)
		}
	}
	return nil
}
