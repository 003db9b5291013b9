package strip

import (
	"fmt"
	"strings"
)

// Policy names shaders the strip list never tracks. Ignored shaders are
// always kept whole; force-stripped shaders never get strip list entries.
type Policy struct {
	IgnoreNames      []string `yaml:"names,omitempty"`
	IgnorePrefixes   []string `yaml:"prefixes,omitempty"`
	IgnoreSubstrings []string `yaml:"substrings,omitempty"`

	ForceStripNames    []string `yaml:"force_strip_names,omitempty"`
	ForceStripPrefixes []string `yaml:"force_strip_prefixes,omitempty"`
}

// DefaultPolicy ignores built-in UI, sprite, skybox, text and hidden shaders.
func DefaultPolicy() Policy {
	return Policy{
		IgnoreNames: []string{
			"Unlit/Texture",
			"UI/Default", "UI/Additive",
			"Sprites/Default", "Sprites/Mask",
			"Skybox/Cubemap", "Skybox/Procedural",
		},
		IgnorePrefixes:   []string{"Hidden"},
		IgnoreSubstrings: []string{"TextMeshPro"},
	}
}

// Ignores reports whether shader is exempt from stripping.
func (p Policy) Ignores(shader string) bool {
	return matches(shader, p.IgnoreNames, p.IgnorePrefixes, p.IgnoreSubstrings)
}

// ForceStrips reports whether every variant of shader is stripped.
func (p Policy) ForceStrips(shader string) bool {
	return matches(shader, p.ForceStripNames, p.ForceStripPrefixes, nil)
}

func matches(shader string, names, prefixes, substrings []string) bool {
	for _, n := range names {
		if shader == n {
			return true
		}
	}
	for _, pre := range prefixes {
		if pre != "" && strings.HasPrefix(shader, pre) {
			return true
		}
	}
	for _, sub := range substrings {
		if sub != "" && strings.Contains(shader, sub) {
			return true
		}
	}
	return false
}

// MergeMode decides what happens to strip list entries persisted by earlier runs.
type MergeMode int

const (
	// Fresh ignores persisted entries and rebuilds the list from current sources.
	Fresh MergeMode = iota
	// KeepExisting folds persisted entries in as the lowest priority source.
	KeepExisting
	// DiscardExisting evaluates persisted entries and reports the ones that
	// would be dropped, without keeping any of them.
	DiscardExisting
)

var mergeModeNames = [...]string{
	Fresh:           "fresh",
	KeepExisting:    "keep_existing",
	DiscardExisting: "discard_existing",
}

func (m MergeMode) String() string {
	if m < 0 || int(m) >= len(mergeModeNames) {
		return fmt.Sprintf("MergeMode(%d)", int(m))
	}
	return mergeModeNames[m]
}

// ParseMergeMode parses a merge mode name. Dashes and underscores are interchangeable.
func ParseMergeMode(s string) (MergeMode, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "", "fresh":
		return Fresh, nil
	case "keep", "keep_existing", "keepexisting":
		return KeepExisting, nil
	case "discard", "discard_existing", "discardexisting":
		return DiscardExisting, nil
	}
	return Fresh, fmt.Errorf("unknown merge mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m MergeMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MergeMode) UnmarshalText(text []byte) error {
	mode, err := ParseMergeMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
