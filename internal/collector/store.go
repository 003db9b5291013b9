package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/shaderwarm/internal/fsutil"
	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/strip"
)

// Observations is the durable record of what live sessions used.
type Observations struct {
	GlobalKeywords []string      `yaml:"global_keywords,omitempty"`
	Materials      []strip.Entry `yaml:"materials,omitempty"`
}

// Union returns o extended with everything in other that o lacks. Order of
// o is kept; new material entries follow in other's order.
func (o Observations) Union(other Observations) Observations {
	out := Observations{GlobalKeywords: keywords.Union(o.GlobalKeywords, other.GlobalKeywords...)}

	seen := make(map[string]struct{}, len(o.Materials)+len(other.Materials))
	for _, list := range [][]strip.Entry{o.Materials, other.Materials} {
		for _, e := range list {
			e.Keywords = keywords.Local(e.Keywords, nil)
			key := e.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out.Materials = append(out.Materials, e)
		}
	}
	return out
}

// StripObservations converts the stored material entries into strip
// list observations.
func (o Observations) StripObservations() []strip.Observation {
	return strip.EntryObservations(o.Materials)
}

// Store keeps observations in a YAML file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored observations. A missing file holds none.
func (s *Store) Load() (Observations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append unions obs into the stored observations and replaces the file.
// It returns the stored result.
func (s *Store) Append(obs Observations) (Observations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return Observations{}, err
	}
	merged := existing.Union(obs)

	data, err := yaml.Marshal(merged)
	if err != nil {
		return Observations{}, fmt.Errorf("encode observations: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return Observations{}, fmt.Errorf("write observations: %w", err)
	}
	return merged, nil
}

func (s *Store) load() (Observations, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Observations{}, nil
	}
	if err != nil {
		return Observations{}, fmt.Errorf("read observations: %w", err)
	}

	var obs Observations
	if err := yaml.Unmarshal(data, &obs); err != nil {
		return Observations{}, fmt.Errorf("decode observations %s: %w", s.path, err)
	}
	return obs, nil
}
