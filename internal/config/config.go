// Package config loads and saves the processing settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/shaderwarm/internal/fsutil"
	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/logsection"
	"github.com/agleyzer/shaderwarm/internal/parser"
	"github.com/agleyzer/shaderwarm/internal/strip"
	"github.com/agleyzer/shaderwarm/internal/warmup"
)

// ErrConfiguration reports settings that make a processing run impossible.
var ErrConfiguration = errors.New("configuration error")

// Default file locations, relative to the working directory.
const (
	DefaultWarmupListPath   = "ShaderVariants/warmup.yaml"
	DefaultReportPath       = "ShaderVariants/compiled_variants.txt"
	DefaultObservationsPath = "ShaderVariants/observations.yaml"
)

// ForceStrip names shaders whose variants are always stripped.
type ForceStrip struct {
	Names    []string `yaml:"names,omitempty"`
	Prefixes []string `yaml:"prefixes,omitempty"`
}

// Ignore names shaders that are never stripped.
type Ignore struct {
	Names      []string `yaml:"names,omitempty"`
	Prefixes   []string `yaml:"prefixes,omitempty"`
	Substrings []string `yaml:"substrings,omitempty"`
}

// Settings holds the configuration for a processing run.
type Settings struct {
	// LogFilePath is the upload log to harvest
	LogFilePath string `yaml:"log_file_path"`

	// LineBeginning is the marker preceding every upload event
	LineBeginning string `yaml:"line_beginning"`

	// MinUploadTimeMs excludes faster uploads from the warm-up list
	MinUploadTimeMs float64 `yaml:"min_upload_time_ms"`

	// SkipMultipleUploads excludes variants uploaded more than once
	SkipMultipleUploads bool `yaml:"skip_multiple_uploads"`

	// StartingLine is the log sentinel before which everything is ignored
	StartingLine string `yaml:"starting_line"`

	// EndMarker separates processed lines from freshly appended ones
	EndMarker string `yaml:"end_marker"`

	// ManualEntries are always part of the warm-up list
	ManualEntries []warmup.Entry `yaml:"manual_entries,omitempty"`

	// WarmupListPath is where the warm-up collection is written
	WarmupListPath string `yaml:"warmup_list_path"`

	// StrippingEnabled turns the strip decision on; when false every
	// variant is kept
	StrippingEnabled bool `yaml:"stripping_enabled"`

	// MergeMode decides what happens to the stored strip list
	MergeMode strip.MergeMode `yaml:"merge_mode"`

	// GlobalKeywords grows across runs and is never pruned automatically
	GlobalKeywords []string `yaml:"global_keywords,omitempty"`

	// LocalKeywordEntries is the strip list
	LocalKeywordEntries []strip.Entry `yaml:"local_keyword_entries,omitempty"`

	ReportPath       string `yaml:"report_path"`
	ManifestPath     string `yaml:"manifest_path"`
	ObservationsPath string `yaml:"observations_path"`

	Ignore     Ignore     `yaml:"ignore"`
	ForceStrip ForceStrip `yaml:"force_strip"`
}

// Default returns settings with every default applied. LogFilePath is left
// empty because it has no sensible default.
func Default() *Settings {
	p := strip.DefaultPolicy()
	return &Settings{
		LineBeginning:       parser.DefaultLineBeginning,
		SkipMultipleUploads: true,
		StartingLine:        logsection.DefaultStartingLine,
		EndMarker:           logsection.DefaultEndMarker,
		WarmupListPath:      DefaultWarmupListPath,
		StrippingEnabled:    true,
		ReportPath:          DefaultReportPath,
		ObservationsPath:    DefaultObservationsPath,
		Ignore: Ignore{
			Names:      p.IgnoreNames,
			Prefixes:   p.IgnorePrefixes,
			Substrings: p.IgnoreSubstrings,
		},
	}
}

// Load reads settings from path. Fields the file omits keep their
// defaults, and a missing file yields the defaults.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	return s, nil
}

// Save replaces the settings file at path.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Validate checks that a run can proceed and fills zero-valued defaults.
func (s *Settings) Validate() error {
	if s.LogFilePath == "" {
		return fmt.Errorf("%w: log_file_path is required", ErrConfiguration)
	}
	s.ApplyDefaults()
	return nil
}

// ApplyDefaults fills zero-valued fields that have defaults.
func (s *Settings) ApplyDefaults() {
	if s.LineBeginning == "" {
		s.LineBeginning = parser.DefaultLineBeginning
	}
	if s.StartingLine == "" {
		s.StartingLine = logsection.DefaultStartingLine
	}
	if s.EndMarker == "" {
		s.EndMarker = logsection.DefaultEndMarker
	}
	if s.WarmupListPath == "" {
		s.WarmupListPath = DefaultWarmupListPath
	}
	if s.ReportPath == "" {
		s.ReportPath = DefaultReportPath
	}
	if s.ObservationsPath == "" {
		s.ObservationsPath = DefaultObservationsPath
	}
}

// Policy returns the strip policy the settings describe.
func (s *Settings) Policy() strip.Policy {
	return strip.Policy{
		IgnoreNames:        s.Ignore.Names,
		IgnorePrefixes:     s.Ignore.Prefixes,
		IgnoreSubstrings:   s.Ignore.Substrings,
		ForceStripNames:    s.ForceStrip.Names,
		ForceStripPrefixes: s.ForceStrip.Prefixes,
	}
}

// SectionOptions returns the log section markers.
func (s *Settings) SectionOptions() logsection.Options {
	return logsection.Options{
		StartingLine:  s.StartingLine,
		EndMarker:     s.EndMarker,
		LineBeginning: s.LineBeginning,
	}
}

// WarmupOptions returns the warm-up list filters.
func (s *Settings) WarmupOptions() warmup.Options {
	return warmup.Options{
		MinUploadTimeMs:     s.MinUploadTimeMs,
		SkipMultipleUploads: s.SkipMultipleUploads,
	}
}

// AddGlobalKeywords unions names into GlobalKeywords and reports how many
// were new.
func (s *Settings) AddGlobalKeywords(names ...string) int {
	before := len(s.GlobalKeywords)
	s.GlobalKeywords = keywords.Union(s.GlobalKeywords, names...)
	return len(s.GlobalKeywords) - before
}
