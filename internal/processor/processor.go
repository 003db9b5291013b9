// Package processor runs the end-to-end batch: it normalizes the upload
// log, builds the variant catalog and derives the warm-up and strip lists.
package processor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/agleyzer/shaderwarm/internal/catalog"
	"github.com/agleyzer/shaderwarm/internal/collector"
	"github.com/agleyzer/shaderwarm/internal/config"
	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/logsection"
	"github.com/agleyzer/shaderwarm/internal/parser"
	"github.com/agleyzer/shaderwarm/internal/report"
	"github.com/agleyzer/shaderwarm/internal/shaderdb"
	"github.com/agleyzer/shaderwarm/internal/strip"
	"github.com/agleyzer/shaderwarm/internal/variant"
	"github.com/agleyzer/shaderwarm/internal/warmup"
)

// Result summarizes one processing run.
type Result struct {
	RunID string

	// LogCreated is set when the log file did not exist and was created
	LogCreated bool

	// Lines is the number of normalized variant lines
	Lines int

	Catalog        []variant.Record
	Malformed      int
	MissingShaders int

	Warmup        warmup.Result
	WarmupWritten bool

	// Strip is nil when stripping is disabled
	Strip *strip.Result

	// NewGlobalKeywords counts global keywords added to the settings
	NewGlobalKeywords int
}

// Processor runs processing batches against one settings file. Runs
// started while another is in flight share its result.
type Processor struct {
	settingsPath string
	registry     *shaderdb.Registry
	logger       *slog.Logger

	group singleflight.Group

	// mu serializes every read-modify-write of the settings file
	mu sync.Mutex
}

// Option configures a Processor.
type Option func(*Processor)

// WithRegistry makes the processor use reg instead of loading the
// manifest named in the settings.
func WithRegistry(reg *shaderdb.Registry) Option {
	return func(p *Processor) {
		p.registry = reg
	}
}

// New creates a Processor for the settings file at settingsPath.
func New(settingsPath string, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{settingsPath: settingsPath, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SettingsPath returns the settings file the processor works on.
func (p *Processor) SettingsPath() string {
	return p.settingsPath
}

// Run performs one processing batch. A call made while a batch is already
// running waits for it and returns its result.
func (p *Processor) Run(ctx context.Context) (*Result, error) {
	v, err, shared := p.group.Do(p.settingsPath, func() (any, error) {
		return p.run(ctx)
	})
	if shared {
		p.logger.Debug("joined in-flight processing run", "settings", p.settingsPath)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (p *Processor) run(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := &Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", res.RunID)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		logger.Error("cannot process shader variants", "error", err)
		return nil, err
	}

	reg, err := p.loadRegistry(settings, logger)
	if err != nil {
		return nil, err
	}

	if err := report.NewWriter(settings.ReportPath).Reset(); err != nil {
		return nil, err
	}

	logFile := logsection.NewFile(settings.LogFilePath, settings.SectionOptions(), logger)
	if res.LogCreated, err = logFile.Ensure(); err != nil {
		return nil, err
	}

	prs := parser.New(settings.LineBeginning, reg)
	lines, err := logFile.Normalize(KeyFunc(prs))
	if err != nil {
		return nil, err
	}
	res.Lines = len(lines)

	kctx := keywords.NewContext(reg.GlobalKeywords(), settings.GlobalKeywords)
	cat := catalog.NewBuilder(prs, logger).Build(lines, kctx)
	res.Catalog = cat.Records()
	res.Malformed = cat.Malformed
	res.MissingShaders = cat.MissingShaders

	res.NewGlobalKeywords = settings.AddGlobalKeywords(kctx.Found()...)
	if res.NewGlobalKeywords > 0 {
		logger.Info("added global keywords", "count", res.NewGlobalKeywords)
	}

	manual, manualObs := resolveManual(settings.ManualEntries, reg, logger)
	res.Warmup = warmup.Build(res.Catalog, manual, settings.WarmupOptions(), logger)
	if res.WarmupWritten, err = warmup.WriteCollection(settings.WarmupListPath, res.Warmup.Variants); err != nil {
		return nil, err
	}

	if settings.StrippingEnabled {
		sources, err := stripSources(settings, res.Catalog, manualObs, reg)
		if err != nil {
			return nil, err
		}
		sres := strip.Build(sources, strip.Options{
			Global: kctx.Global(),
			Policy: settings.Policy(),
			Mode:   settings.MergeMode,
		}, logger)
		settings.LocalKeywordEntries = sres.Entries
		res.Strip = &sres
	} else {
		logger.Info("stripping disabled, strip list left unchanged")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := settings.Save(p.settingsPath); err != nil {
		return nil, err
	}

	logger.Info("processed shader variants",
		"lines", res.Lines,
		"variants", len(res.Catalog),
		"warmup", len(res.Warmup.Variants),
		"warmupWritten", res.WarmupWritten,
		"stripEntries", len(settings.LocalKeywordEntries),
	)
	return res, nil
}

// KeyFunc returns the log section key function backed by prs.
func KeyFunc(prs *parser.Parser) logsection.KeyFunc {
	return func(line string) (string, bool) {
		rec, err := prs.Parse(line)
		if err != nil {
			return "", false
		}
		return rec.Key(), true
	}
}

// stripSources lists the strip list sources in priority order: catalog,
// manual entries, material scan, then either the runtime observations or
// the persisted strip list depending on the merge mode.
func stripSources(settings *config.Settings, records []variant.Record, manual []strip.Observation, reg *shaderdb.Registry) ([]strip.Source, error) {
	sources := []strip.Source{
		{Kind: strip.SourceCatalog, Observations: recordObservations(records)},
		{Kind: strip.SourceManual, Observations: manual},
		{Kind: strip.SourceMaterials, Observations: collector.RegistrySnapshot(reg).Materials},
	}

	if settings.MergeMode == strip.Fresh {
		obs, err := collector.NewStore(settings.ObservationsPath).Load()
		if err != nil {
			return nil, err
		}
		return append(sources, strip.Source{Kind: strip.SourceRuntime, Observations: obs.StripObservations()}), nil
	}

	return append(sources, strip.Source{
		Kind:         strip.SourcePersisted,
		Observations: strip.EntryObservations(settings.LocalKeywordEntries),
	}), nil
}

// resolveManual checks manual entries against the registry. Entries whose
// shader is empty or unknown are left out of the warm-up list and reach the
// strip sources with an empty shader, which the strip builder discards.
func resolveManual(entries []warmup.Entry, reg *shaderdb.Registry, logger *slog.Logger) ([]variant.Record, []strip.Observation) {
	records := warmup.Collection{Variants: entries}.Records()
	warm := make([]variant.Record, 0, len(records))
	obs := make([]strip.Observation, len(records))
	for i, r := range records {
		obs[i] = strip.Observation{Shader: r.Shader, Keywords: r.Keywords}
		if r.Shader == "" || !reg.HasShader(r.Shader) {
			logger.Warn("skipping manual entry with unresolved shader", "entry", i, "shader", r.Shader)
			obs[i].Shader = ""
			continue
		}
		warm = append(warm, r)
	}
	return warm, obs
}

func recordObservations(records []variant.Record) []strip.Observation {
	out := make([]strip.Observation, len(records))
	for i, r := range records {
		out[i] = strip.Observation{Shader: r.Shader, Keywords: r.Keywords}
	}
	return out
}

func (p *Processor) loadRegistry(settings *config.Settings, logger *slog.Logger) (*shaderdb.Registry, error) {
	if p.registry != nil {
		return p.registry, nil
	}
	if settings.ManifestPath == "" {
		logger.Warn("no shader manifest configured, accepting every shader name")
		return shaderdb.Permissive(), nil
	}
	return shaderdb.Load(settings.ManifestPath)
}

// AddEnabledGlobalKeywords unions the global keywords the host currently
// enables into the settings and returns how many were new.
func (p *Processor) AddEnabledGlobalKeywords() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return 0, err
	}
	reg, err := p.loadRegistry(settings, p.logger)
	if err != nil {
		return 0, err
	}

	added := settings.AddGlobalKeywords(collector.RegistrySnapshot(reg).GlobalKeywords...)
	if err := settings.Save(p.settingsPath); err != nil {
		return 0, err
	}

	p.logger.Info("added enabled global keywords", "added", added, "total", len(settings.GlobalKeywords))
	return added, nil
}

// RecordSession stores the observations of a finished live session and
// unions its global keywords into the settings.
func (p *Processor) RecordSession(obs collector.Observations) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return err
	}
	settings.ApplyDefaults()

	stored, err := collector.NewStore(settings.ObservationsPath).Append(obs)
	if err != nil {
		return err
	}

	added := settings.AddGlobalKeywords(obs.GlobalKeywords...)
	if err := settings.Save(p.settingsPath); err != nil {
		return err
	}

	p.logger.Info("recorded session observations",
		"materials", len(stored.Materials),
		"newGlobalKeywords", added,
	)
	return nil
}

// Stripper builds a strip decision service from the stored strip list.
func (p *Processor) Stripper() (*strip.Stripper, *config.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return nil, nil, err
	}
	settings.ApplyDefaults()

	s := strip.NewStripper(
		settings.LocalKeywordEntries,
		keywords.NewSet(settings.GlobalKeywords...),
		settings.Policy(),
		!settings.StrippingEnabled,
	)
	return s, settings, nil
}

// Parser returns a line parser configured from the settings file.
func (p *Processor) Parser() (*parser.Parser, error) {
	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return nil, err
	}
	settings.ApplyDefaults()

	reg, err := p.loadRegistry(settings, p.logger)
	if err != nil {
		return nil, err
	}
	return parser.New(settings.LineBeginning, reg), nil
}

// Settings loads the settings file with defaults applied.
func (p *Processor) Settings() (*config.Settings, error) {
	settings, err := config.Load(p.settingsPath)
	if err != nil {
		return nil, err
	}
	settings.ApplyDefaults()
	return settings, nil
}
