// Package strip builds the list of local keyword sets each shader must keep
// and decides, at build time, which compiled variants can be dropped.
package strip

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/agleyzer/shaderwarm/internal/keywords"
)

// Entry is one (shader, local keyword set) pair the build keeps.
type Entry struct {
	Shader   string   `yaml:"shader"`
	Keywords []string `yaml:"keywords,flow"`
}

// Key is the uniqueness key of the entry. Keywords must already be sorted.
func (e Entry) Key() string {
	return EntryKey(e.Shader, e.Keywords)
}

// EntryKey joins a shader name and its sorted local keywords.
func EntryKey(shader string, sortedKeywords []string) string {
	if len(sortedKeywords) == 0 {
		return shader + "|"
	}
	return shader + "|" + strings.Join(sortedKeywords, "|")
}

// SourceKind identifies where an observation came from.
type SourceKind int

const (
	// SourceCatalog is the variant catalog built from the upload log.
	SourceCatalog SourceKind = iota
	// SourceManual holds manually curated warm-up entries.
	SourceManual
	// SourceMaterials is the host's material scan.
	SourceMaterials
	// SourcePersisted is the strip list stored by the previous run.
	SourcePersisted
	// SourceRuntime holds keyword sets collected during live sessions.
	SourceRuntime
)

var sourceKindNames = [...]string{
	SourceCatalog:   "catalog",
	SourceManual:    "manual",
	SourceMaterials: "materials",
	SourcePersisted: "persisted",
	SourceRuntime:   "runtime",
}

func (k SourceKind) String() string {
	if k < 0 || int(k) >= len(sourceKindNames) {
		return "unknown"
	}
	return sourceKindNames[k]
}

// Observation is a shader seen with a raw keyword list. An empty Shader
// means the shader could not be resolved.
type Observation struct {
	Shader   string
	Keywords []string
}

// Source is an ordered batch of observations of one kind.
type Source struct {
	Kind         SourceKind
	Observations []Observation
}

// Options configures a strip list build.
type Options struct {
	// Global keywords are removed from every observation
	Global keywords.Set

	// Policy selects ignored and force-stripped shaders
	Policy Policy

	// Mode decides how SourcePersisted observations are treated
	Mode MergeMode
}

// Result is the outcome of a strip list build.
type Result struct {
	// Entries sorted by shader name
	Entries []Entry

	// Kept lists persisted entries folded in under KeepExisting
	Kept []Entry

	// Removed lists persisted entries that DiscardExisting dropped
	Removed []Entry

	// Discarded counts observations rejected by the shader policy or
	// because no local keywords remained
	Discarded int
}

// Build folds the sources, in order, into a unique set of entries. The
// first source to produce a key wins.
func Build(sources []Source, opts Options, logger *slog.Logger) Result {
	var res Result
	seen := make(map[string]struct{})

	for _, src := range sources {
		if src.Kind == SourcePersisted && opts.Mode == Fresh {
			continue
		}

		for _, obs := range src.Observations {
			entry, ok := evaluate(obs, opts)
			if !ok {
				res.Discarded++
				continue
			}

			key := entry.Key()
			if _, dup := seen[key]; dup {
				continue
			}

			if src.Kind == SourcePersisted {
				switch opts.Mode {
				case DiscardExisting:
					res.Removed = append(res.Removed, entry)
					logger.Info("removed strip entry", "shader", entry.Shader, "keywords", strings.Join(entry.Keywords, " "))
					continue
				case KeepExisting:
					res.Kept = append(res.Kept, entry)
					logger.Info("kept strip entry", "shader", entry.Shader, "keywords", strings.Join(entry.Keywords, " "))
				}
			}

			seen[key] = struct{}{}
			res.Entries = append(res.Entries, entry)
		}
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return res.Entries[i].Shader < res.Entries[j].Shader
	})

	logger.Info("built strip list",
		"entries", len(res.Entries),
		"kept", len(res.Kept),
		"removed", len(res.Removed),
		"discarded", res.Discarded,
		"mode", opts.Mode.String(),
	)
	return res
}

// evaluate turns an observation into an entry, or reports false when the
// shader is unresolved, force-stripped or ignored, or no local keywords remain.
func evaluate(obs Observation, opts Options) (Entry, bool) {
	if obs.Shader == "" || opts.Policy.ForceStrips(obs.Shader) || opts.Policy.Ignores(obs.Shader) {
		return Entry{}, false
	}

	local := keywords.Local(obs.Keywords, opts.Global)
	if len(local) == 0 {
		return Entry{}, false
	}
	return Entry{Shader: obs.Shader, Keywords: local}, true
}

// EntryObservations converts stored entries into observations.
func EntryObservations(entries []Entry) []Observation {
	out := make([]Observation, len(entries))
	for i, e := range entries {
		out[i] = Observation{Shader: e.Shader, Keywords: append([]string(nil), e.Keywords...)}
	}
	return out
}
