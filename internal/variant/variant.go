// Package variant defines data structures for observed shader variants.
package variant

import (
	"fmt"
	"strings"
)

// PassType identifies the render pass a variant was compiled for.
type PassType int

const (
	// Normal is a built-in pipeline pass without a LightMode tag.
	Normal PassType = iota
	// ShadowCaster renders into shadow maps.
	ShadowCaster
	// Meta is the lightmap baking pass.
	Meta
	// ScriptableRenderPipeline is any SRP pass; also the bucket for unknown LightMode tags.
	ScriptableRenderPipeline
	// ScriptableRenderPipelineDefaultUnlit is the SRPDefaultUnlit pass.
	ScriptableRenderPipelineDefaultUnlit
)

var passTypeNames = [...]string{
	Normal:                               "Normal",
	ShadowCaster:                         "ShadowCaster",
	Meta:                                 "Meta",
	ScriptableRenderPipeline:             "ScriptableRenderPipeline",
	ScriptableRenderPipelineDefaultUnlit: "ScriptableRenderPipelineDefaultUnlit",
}

// String returns the pass type name used in variant keys and reports.
func (p PassType) String() string {
	if p < 0 || int(p) >= len(passTypeNames) {
		return fmt.Sprintf("PassType(%d)", int(p))
	}
	return passTypeNames[p]
}

// ParsePassType converts a pass type name back into a PassType.
func ParsePassType(name string) (PassType, error) {
	for i, n := range passTypeNames {
		if strings.EqualFold(n, name) {
			return PassType(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown pass type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (p PassType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PassType) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = Normal
		return nil
	}
	pt, err := ParsePassType(string(text))
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

// PassTypeForLightMode maps a pass's LightMode tag value to a PassType.
// An empty tag maps to Normal while an unrecognized tag maps to
// ScriptableRenderPipeline. The asymmetry matches how the build host
// classifies passes and must not be changed.
func PassTypeForLightMode(lightMode string) PassType {
	switch strings.ToUpper(strings.TrimSpace(lightMode)) {
	case "SRPDEFAULTUNLIT":
		return ScriptableRenderPipelineDefaultUnlit
	case "UNIVERSALFORWARD":
		return ScriptableRenderPipeline
	case "SHADOWCASTER":
		return ShadowCaster
	case "META":
		return Meta
	case "":
		return Normal
	default:
		return ScriptableRenderPipeline
	}
}

// Record represents one observed (shader, pass, keyword set) combination.
type Record struct {
	// Shader is the logical shader name as resolved by the shader registry
	Shader string

	// PassType is the render pass the variant was uploaded for
	PassType PassType

	// Keywords in the order the log emitted them
	// An empty slice means the variant has no keywords
	Keywords []string

	// UploadTimeMs is the upload duration reported by the log, 0 when absent
	UploadTimeMs float64

	// UploadCount is the number of times the same variant was seen
	UploadCount int
}

// Key returns the identity of the variant. Keyword order is significant.
func (r Record) Key() string {
	return Key(r.Shader, r.PassType, r.Keywords)
}

// Key builds the variant identity from its parts.
func Key(shader string, pass PassType, keywords []string) string {
	return shader + "|" + pass.String() + "|" + strings.Join(keywords, " ")
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := r
	if r.Keywords != nil {
		c.Keywords = append(make([]string, 0, len(r.Keywords)), r.Keywords...)
	}
	return c
}
