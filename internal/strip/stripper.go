package strip

import (
	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/report"
)

// Snippet identifies the shader program a batch of variants belongs to.
type Snippet struct {
	Shader     string `json:"shader"`
	PassType   string `json:"passType"`
	PassName   string `json:"passName"`
	ShaderType string `json:"shaderType"`
}

// CompilerVariant is one variant the build is about to compile.
type CompilerVariant struct {
	GraphicsTier string   `json:"graphicsTier"`
	Platform     string   `json:"platform"`
	BuildTarget  string   `json:"buildTarget"`
	Keywords     []string `json:"keywords"`
}

// Stripper answers strip decisions from a strip list.
type Stripper struct {
	global   keywords.Set
	policy   Policy
	disabled bool
	keep     map[string]struct{}
	shaders  keywords.Set
}

// NewStripper creates a Stripper. When disabled it keeps every variant.
func NewStripper(entries []Entry, global keywords.Set, policy Policy, disabled bool) *Stripper {
	if global == nil {
		global = keywords.NewSet()
	}
	s := &Stripper{
		global:   global,
		policy:   policy,
		disabled: disabled,
		keep:     make(map[string]struct{}, len(entries)),
		shaders:  keywords.NewSet(),
	}
	for _, e := range entries {
		local := keywords.Local(e.Keywords, keywords.NewSet())
		s.keep[EntryKey(e.Shader, local)] = struct{}{}
		s.shaders.Add(e.Shader)
	}
	return s
}

// ShouldStrip reports whether a variant of shader with the given local
// keywords can be dropped. The rules apply in order:
//   - ignored shaders are never stripped, force-stripped shaders always are
//   - a variant without local keywords is kept when the strip list has at
//     least one entry for its shader, since entries never hold empty sets;
//     for any other shader it is stripped
//   - otherwise the variant is stripped unless the strip list holds exactly
//     its local keyword set
func (s *Stripper) ShouldStrip(shader string, localKeywords []string) bool {
	if s.disabled || s.policy.Ignores(shader) {
		return false
	}
	if s.policy.ForceStrips(shader) {
		return true
	}

	local := keywords.Local(localKeywords, keywords.NewSet())
	if len(local) == 0 {
		return !s.shaders.Has(shader)
	}
	_, keep := s.keep[EntryKey(shader, local)]
	return !keep
}

// Filter applies strip decisions to a batch of variants of one snippet.
// It returns the variants to compile and one report line for each of them.
func (s *Stripper) Filter(sn Snippet, variants []CompilerVariant) ([]CompilerVariant, []report.Compiled) {
	kept := make([]CompilerVariant, 0, len(variants))
	var lines []report.Compiled

	for _, v := range variants {
		local := keywords.Local(v.Keywords, s.global)
		if s.ShouldStrip(sn.Shader, local) {
			continue
		}

		kept = append(kept, v)
		lines = append(lines, report.Compiled{
			Shader:       sn.Shader,
			GraphicsTier: v.GraphicsTier,
			Platform:     v.Platform,
			BuildTarget:  v.BuildTarget,
			PassType:     sn.PassType,
			PassName:     sn.PassName,
			ShaderType:   sn.ShaderType,
			Keywords:     v.Keywords,
		})
	}
	return kept, lines
}

// Len returns the number of keyword sets the stripper keeps.
func (s *Stripper) Len() int {
	return len(s.keep)
}

// LocalKeywords removes the stripper's global keywords from a raw
// keyword list and returns the rest sorted.
func (s *Stripper) LocalKeywords(raw []string) []string {
	return keywords.Local(raw, s.global)
}
