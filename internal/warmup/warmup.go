// Package warmup selects the variants a build should pre-compile and writes
// them out as a warm-up collection.
package warmup

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/shaderwarm/internal/fsutil"
	"github.com/agleyzer/shaderwarm/internal/variant"
)

// Options controls which catalog entries qualify for warm-up.
type Options struct {
	// MinUploadTimeMs excludes variants that uploaded faster than this
	MinUploadTimeMs float64

	// SkipMultipleUploads excludes variants uploaded more than once, which
	// usually means the vertex layout differed between uploads
	SkipMultipleUploads bool
}

// Skipped is a catalog entry left out of the warm-up list.
type Skipped struct {
	Record variant.Record
	Reason string
}

// Result is the outcome of building a warm-up list.
type Result struct {
	// Variants to pre-compile: manual entries first, then catalog entries
	Variants []variant.Record

	// Skipped catalog entries with the reason they were excluded
	Skipped []Skipped
}

// Build starts from the manual entries, which are always included, and
// appends every catalog record that passes the filters, in catalog order.
func Build(records, manual []variant.Record, opts Options, logger *slog.Logger) Result {
	res := Result{Variants: make([]variant.Record, 0, len(manual)+len(records))}
	for _, m := range manual {
		res.Variants = append(res.Variants, m.Clone())
	}

	for _, rec := range records {
		if rec.UploadTimeMs < opts.MinUploadTimeMs {
			reason := fmt.Sprintf("upload time (%g ms) is below the threshold (%g ms)", rec.UploadTimeMs, opts.MinUploadTimeMs)
			res.Skipped = append(res.Skipped, Skipped{Record: rec.Clone(), Reason: reason})
			logger.Warn("[SKIPPED] variant", "shader", rec.Shader, "reason", reason)
			continue
		}

		if opts.SkipMultipleUploads && rec.UploadCount > 1 {
			reason := fmt.Sprintf("uploaded %d times, indicating potential differences in vertex layout data", rec.UploadCount)
			res.Skipped = append(res.Skipped, Skipped{Record: rec.Clone(), Reason: reason})
			logger.Warn("[SKIPPED] variant", "shader", rec.Shader, "reason", reason)
			continue
		}

		res.Variants = append(res.Variants, rec.Clone())
	}

	logger.Info("built warm-up list",
		"manual", len(manual),
		"included", len(res.Variants),
		"skipped", len(res.Skipped),
	)
	return res
}

// Entry is one variant in a warm-up collection file.
type Entry struct {
	Shader   string           `yaml:"shader"`
	PassType variant.PassType `yaml:"pass_type"`
	Keywords []string         `yaml:"keywords,flow"`
}

// Collection is the warm-up artifact consumed by the runtime pre-compiler.
type Collection struct {
	Variants []Entry `yaml:"variants"`
}

// NewCollection converts records into a collection, keeping their order.
func NewCollection(records []variant.Record) Collection {
	c := Collection{Variants: make([]Entry, 0, len(records))}
	for _, r := range records {
		kws := r.Keywords
		if kws == nil {
			kws = []string{}
		}
		c.Variants = append(c.Variants, Entry{Shader: r.Shader, PassType: r.PassType, Keywords: kws})
	}
	return c
}

// Records converts the collection entries back into variant records.
func (c Collection) Records() []variant.Record {
	out := make([]variant.Record, 0, len(c.Variants))
	for _, e := range c.Variants {
		kws := e.Keywords
		if kws == nil {
			kws = []string{}
		}
		out = append(out, variant.Record{Shader: e.Shader, PassType: e.PassType, Keywords: kws, UploadCount: 1})
	}
	return out
}

// WriteCollection writes records to path as a warm-up collection. The file
// is left untouched when its content would not change.
func WriteCollection(path string, records []variant.Record) (bool, error) {
	data, err := yaml.Marshal(NewCollection(records))
	if err != nil {
		return false, fmt.Errorf("encode warm-up collection: %w", err)
	}
	changed, err := fsutil.WriteFileIfChanged(path, data, 0o644)
	if err != nil {
		return false, fmt.Errorf("write warm-up collection: %w", err)
	}
	return changed, nil
}

// LoadCollection reads a warm-up collection from path.
func LoadCollection(path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, fmt.Errorf("read warm-up collection: %w", err)
	}

	var c Collection
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Collection{}, fmt.Errorf("decode warm-up collection %s: %w", path, err)
	}
	return c, nil
}
