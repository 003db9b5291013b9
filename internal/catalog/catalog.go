// Package catalog folds parsed upload lines into a de-duplicated list of variants.
package catalog

import (
	"errors"
	"log/slog"

	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/parser"
	"github.com/agleyzer/shaderwarm/internal/variant"
)

// Catalog is the de-duplicated set of variants seen in the log, in first-seen order.
type Catalog struct {
	records []*variant.Record
	index   map[string]*variant.Record

	// Lines is the number of lines folded into the catalog
	Lines int

	// Malformed counts lines rejected for structural reasons
	Malformed int

	// MissingShaders counts lines naming shaders the registry does not know
	MissingShaders int
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{index: make(map[string]*variant.Record)}
}

// Add folds a record into the catalog. A record whose key is already
// present increments that entry's upload count instead of being inserted.
func (c *Catalog) Add(rec variant.Record) {
	key := rec.Key()
	if existing, ok := c.index[key]; ok {
		existing.UploadCount++
		return
	}

	r := rec.Clone()
	r.UploadCount = 1
	c.index[key] = &r
	c.records = append(c.records, &r)
}

// Records returns copies of the catalog entries in insertion order.
func (c *Catalog) Records() []variant.Record {
	out := make([]variant.Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of distinct variants.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Failures returns the number of lines that did not enter the catalog.
func (c *Catalog) Failures() int {
	return c.Malformed + c.MissingShaders
}

// Builder builds catalogs from normalized log lines.
type Builder struct {
	parser *parser.Parser
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(p *parser.Parser, logger *slog.Logger) *Builder {
	return &Builder{parser: p, logger: logger}
}

// Build parses every line and folds it into a new catalog. Every line's
// keywords are reported to kctx, including lines whose shader is unknown.
// A line that fails to parse is logged and skipped.
func (b *Builder) Build(lines []string, kctx *keywords.Context) *Catalog {
	c := New()

	for _, line := range lines {
		c.Lines++

		if kctx != nil {
			if kws, ok := b.parser.Keywords(line); ok {
				kctx.Observe(kws)
			}
		}

		rec, err := b.parser.Parse(line)
		if err != nil {
			if errors.Is(err, parser.ErrShaderNotFound) {
				c.MissingShaders++
				var lineErr *parser.LineError
				shader := ""
				if errors.As(err, &lineErr) {
					shader = lineErr.Shader
				}
				b.logger.Warn("shader was not found", "shader", shader, "line", line)
				continue
			}

			c.Malformed++
			b.logger.Warn("failed to parse variant", "line", line, "error", err)
			continue
		}

		c.Add(rec)
	}

	b.logger.Info("built variant catalog",
		"lines", c.Lines,
		"variants", c.Len(),
		"malformed", c.Malformed,
		"missingShaders", c.MissingShaders,
	)
	return c
}
