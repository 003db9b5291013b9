// Package collector samples the keywords a live session uses and stores
// them once the session ends.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/shaderdb"
	"github.com/agleyzer/shaderwarm/internal/strip"
)

// Snapshot is what a live session reports in one tick.
type Snapshot struct {
	// GlobalKeywords currently enabled and declared global
	GlobalKeywords []string

	// Materials holds the shader and enabled keywords of every loaded material
	Materials []strip.Observation
}

// Sampler takes a snapshot of the live session.
type Sampler interface {
	Sample() (Snapshot, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func() (Snapshot, error)

// Sample calls f.
func (f SamplerFunc) Sample() (Snapshot, error) {
	return f()
}

// FlushFunc receives the accumulated observations when the session ends.
type FlushFunc func(Observations) error

// Collector accumulates snapshots into a set of observations.
type Collector struct {
	mu        sync.Mutex
	sampler   Sampler
	interval  time.Duration
	flush     FlushFunc
	global    keywords.Set
	materials map[string]strip.Entry
	order     []string
	ticks     int
	failures  int

	once     sync.Once
	flushErr error

	logger *slog.Logger
}

// New creates a Collector that samples every interval and hands its
// observations to flush when the session ends.
func New(sampler Sampler, interval time.Duration, flush FlushFunc, logger *slog.Logger) (*Collector, error) {
	if sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if flush == nil {
		return nil, fmt.Errorf("flush function is required")
	}

	return &Collector{
		sampler:   sampler,
		interval:  interval,
		flush:     flush,
		global:    keywords.NewSet(),
		materials: make(map[string]strip.Entry),
		logger:    logger,
	}, nil
}

// Tick takes one snapshot and folds it in. Repeating an identical snapshot
// changes nothing.
func (c *Collector) Tick() error {
	snap, err := c.sampler.Sample()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticks++
	if err != nil {
		c.failures++
		return fmt.Errorf("sample session: %w", err)
	}

	c.global.Add(snap.GlobalKeywords...)
	for _, m := range snap.Materials {
		if m.Shader == "" {
			continue
		}
		e := strip.Entry{Shader: m.Shader, Keywords: keywords.Local(m.Keywords, nil)}
		key := e.Key()
		if _, ok := c.materials[key]; ok {
			continue
		}
		c.materials[key] = e
		c.order = append(c.order, key)
	}
	return nil
}

// Run samples once per interval until ctx is done, then ends the session.
// It returns the flush error, if any.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("starting keyword collection", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping keyword collection")
			return c.End()
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				c.logger.Warn("failed to sample session", "error", err)
			}
		}
	}
}

// End flushes the accumulated observations. Only the first call flushes;
// later calls return the first call's result.
func (c *Collector) End() error {
	c.once.Do(func() {
		obs := c.Observations()
		c.flushErr = c.flush(obs)
		if c.flushErr != nil {
			c.logger.Error("failed to flush keyword observations", "error", c.flushErr)
			return
		}
		c.logger.Info("flushed keyword observations",
			"globalKeywords", len(obs.GlobalKeywords),
			"materials", len(obs.Materials),
		)
	})
	return c.flushErr
}

// Observations returns what has been collected so far.
func (c *Collector) Observations() Observations {
	c.mu.Lock()
	defer c.mu.Unlock()

	obs := Observations{GlobalKeywords: c.global.Sorted()}
	for _, key := range c.order {
		e := c.materials[key]
		obs.Materials = append(obs.Materials, strip.Entry{Shader: e.Shader, Keywords: append([]string{}, e.Keywords...)})
	}
	return obs
}

// GetStats returns current statistics about the collection.
func (c *Collector) GetStats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]any{
		"ticks":           c.ticks,
		"failed_ticks":    c.failures,
		"global_keywords": len(c.global),
		"materials":       len(c.materials),
		"interval":        c.interval.String(),
	}
}

// ManifestSampler re-reads the host's shader manifest on every tick. The
// host rewrites the manifest while the session runs.
func ManifestSampler(path string) Sampler {
	return SamplerFunc(func() (Snapshot, error) {
		reg, err := shaderdb.Load(path)
		if err != nil {
			return Snapshot{}, err
		}
		return RegistrySnapshot(reg), nil
	})
}

// RegistrySnapshot reports the enabled global keywords the registry also
// declares, and every material's shader and keywords. Materials whose
// shader is unknown are reported without a shader.
func RegistrySnapshot(reg *shaderdb.Registry) Snapshot {
	declared := keywords.NewSet(reg.GlobalKeywords()...)

	var snap Snapshot
	for _, k := range reg.EnabledGlobalKeywords() {
		if declared.Has(k) {
			snap.GlobalKeywords = append(snap.GlobalKeywords, k)
		}
	}
	for _, m := range reg.Materials() {
		shader := strings.TrimSpace(m.Shader)
		if !reg.HasShader(shader) {
			shader = ""
		}
		snap.Materials = append(snap.Materials, strip.Observation{Shader: shader, Keywords: m.Keywords})
	}
	return snap
}
