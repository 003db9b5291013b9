// Package shaderdb describes the host project's shaders, materials and
// declared global keywords. It is loaded from a YAML manifest exported by
// the host and answers the lookups the log parser and strip builder need.
package shaderdb

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/shaderwarm/internal/variant"
)

// Pass is one pass of a shader's active sub-shader.
type Pass struct {
	Name string            `yaml:"name"`
	Tags map[string]string `yaml:"tags,omitempty"`
}

// LightMode returns the pass's LightMode tag, matched case-insensitively.
func (p Pass) LightMode() string {
	for k, v := range p.Tags {
		if strings.EqualFold(k, "LightMode") {
			return v
		}
	}
	return ""
}

// Shader is a shader known to the host.
type Shader struct {
	Name   string `yaml:"name"`
	Passes []Pass `yaml:"passes,omitempty"`
}

// Material is a material asset and the keywords it enables.
type Material struct {
	Name     string   `yaml:"name"`
	Shader   string   `yaml:"shader"`
	Keywords []string `yaml:"keywords,flow"`
}

// Manifest is the on-disk form of a Registry.
type Manifest struct {
	Shaders               []Shader   `yaml:"shaders"`
	Materials             []Material `yaml:"materials,omitempty"`
	GlobalKeywords        []string   `yaml:"global_keywords,omitempty"`
	EnabledGlobalKeywords []string   `yaml:"enabled_global_keywords,omitempty"`
}

// Registry answers shader, pass and material lookups.
type Registry struct {
	manifest      Manifest
	shaders       map[string]*Shader
	acceptUnknown bool
}

// Permissive returns an empty registry that accepts every non-empty
// shader name. Passes of unknown shaders resolve to the Normal pass type.
// It stands in when no manifest is configured.
func Permissive() *Registry {
	return &Registry{shaders: make(map[string]*Shader), acceptUnknown: true}
}

// New builds a Registry from a manifest.
func New(m Manifest) (*Registry, error) {
	r := &Registry{manifest: m, shaders: make(map[string]*Shader, len(m.Shaders))}
	for i := range m.Shaders {
		s := &r.manifest.Shaders[i]
		if s.Name == "" {
			return nil, fmt.Errorf("shader %d has no name", i)
		}
		if _, dup := r.shaders[s.Name]; dup {
			return nil, fmt.Errorf("duplicate shader %q", s.Name)
		}
		r.shaders[s.Name] = s
	}
	return r, nil
}

// Load reads a manifest file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode shader manifest %s: %w", path, err)
	}

	r, err := New(m)
	if err != nil {
		return nil, fmt.Errorf("shader manifest %s: %w", path, err)
	}
	return r, nil
}

// HasShader reports whether a shader with the given name exists.
func (r *Registry) HasShader(name string) bool {
	if r.acceptUnknown && name != "" {
		return true
	}
	_, ok := r.shaders[name]
	return ok
}

// Shader returns the shader with the given name.
func (r *Registry) Shader(name string) (Shader, bool) {
	s, ok := r.shaders[name]
	if !ok {
		return Shader{}, false
	}
	return *s, true
}

// ResolvePassType finds the named pass in the shader's active sub-shader
// and maps its LightMode tag to a pass type. Unknown shaders and passes
// resolve as if the tag were empty.
func (r *Registry) ResolvePassType(shader, passName string) variant.PassType {
	lightMode := ""
	if s, ok := r.shaders[shader]; ok {
		for _, p := range s.Passes {
			if p.Name == passName {
				lightMode = p.LightMode()
				break
			}
		}
	}
	return variant.PassTypeForLightMode(lightMode)
}

// ShaderNames returns the names of all shaders, sorted.
func (r *Registry) ShaderNames() []string {
	names := make([]string, 0, len(r.shaders))
	for n := range r.shaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Materials returns the materials in manifest order.
func (r *Registry) Materials() []Material {
	out := make([]Material, len(r.manifest.Materials))
	for i, m := range r.manifest.Materials {
		m.Keywords = append([]string(nil), m.Keywords...)
		out[i] = m
	}
	return out
}

// GlobalKeywords returns the global keywords the shader system declares.
func (r *Registry) GlobalKeywords() []string {
	return append([]string(nil), r.manifest.GlobalKeywords...)
}

// EnabledGlobalKeywords returns the global keywords currently enabled.
func (r *Registry) EnabledGlobalKeywords() []string {
	return append([]string(nil), r.manifest.EnabledGlobalKeywords...)
}
