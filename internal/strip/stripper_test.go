package strip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agleyzer/shaderwarm/internal/keywords"
)

func testStripper(disabled bool) *Stripper {
	policy := DefaultPolicy()
	policy.ForceStripNames = []string{"Legacy/Old"}
	entries := []Entry{
		{Shader: "Standard", Keywords: []string{"KW_B"}},
		{Shader: "Lit", Keywords: []string{"_EMISSION", "_NORMALMAP"}},
	}
	return NewStripper(entries, keywords.NewSet("KW_A", "FOG_LINEAR"), policy, disabled)
}

func TestShouldStrip(t *testing.T) {
	s := testStripper(false)

	tests := []struct {
		name   string
		shader string
		local  []string
		want   bool
	}{
		{"exact match kept", "Standard", []string{"KW_B"}, false},
		{"match is order insensitive", "Lit", []string{"_NORMALMAP", "_EMISSION"}, false},
		{"subset is stripped", "Lit", []string{"_NORMALMAP"}, true},
		{"superset is stripped", "Standard", []string{"KW_B", "KW_C"}, true},
		{"other shader's set is stripped", "Lit", []string{"KW_B"}, true},
		{"unknown shader stripped", "Custom/Thing", []string{"X"}, true},
		{"ignored shader kept", "UI/Default", []string{"X"}, false},
		{"no local keywords of recorded shader kept", "Standard", nil, false},
		{"no local keywords of unrecorded shader stripped", "Custom/Thing", nil, true},
		{"no local keywords of ignored shader kept", "Hidden/Blit", nil, false},
		{"force strip", "Legacy/Old", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.ShouldStrip(tt.shader, tt.local))
		})
	}
	assert.Equal(t, 2, s.Len())
}

func TestShouldStrip_Disabled(t *testing.T) {
	s := testStripper(true)
	assert.False(t, s.ShouldStrip("Custom/Thing", []string{"X"}))
	assert.False(t, s.ShouldStrip("Legacy/Old", nil))
}

func TestFilter(t *testing.T) {
	s := testStripper(false)
	sn := Snippet{Shader: "Standard", PassType: "Normal", PassName: "FORWARD", ShaderType: "Fragment"}

	kept, lines := s.Filter(sn, []CompilerVariant{
		{GraphicsTier: "Tier1", Platform: "Metal", BuildTarget: "iOS", Keywords: []string{"KW_A", "KW_B"}},
		{GraphicsTier: "Tier1", Platform: "Metal", BuildTarget: "iOS", Keywords: []string{"KW_C"}},
		{GraphicsTier: "Tier2", Platform: "Metal", BuildTarget: "iOS", Keywords: []string{"FOG_LINEAR"}},
	})

	require.Len(t, kept, 2)
	assert.Equal(t, []string{"KW_A", "KW_B"}, kept[0].Keywords)
	assert.Equal(t, []string{"FOG_LINEAR"}, kept[1].Keywords)

	require.Len(t, lines, 2)
	assert.Equal(t, "Compiled: Standard|Graphics:Tier1|Platform:Metal|BuildTarget:iOS|Normal|FORWARD|Fragment|KW_A KW_B", lines[0].String())
	assert.Equal(t, "Compiled: Standard|Graphics:Tier2|Platform:Metal|BuildTarget:iOS|Normal|FORWARD|Fragment|FOG_LINEAR", lines[1].String())
}

func TestBuildThenStrip_RoundTrip(t *testing.T) {
	global := keywords.NewSet("G")
	res := Build([]Source{
		{Kind: SourceCatalog, Observations: []Observation{{Shader: "S", Keywords: []string{"G", "B", "A"}}}},
	}, Options{Global: global}, testLogger(new(bytes.Buffer)))

	s := NewStripper(res.Entries, global, Policy{}, false)
	kept, _ := s.Filter(Snippet{Shader: "S"}, []CompilerVariant{
		{Keywords: []string{"A", "G", "B"}},
		{Keywords: []string{"A"}},
	})

	require.Len(t, kept, 1)
	assert.Equal(t, []string{"A", "G", "B"}, kept[0].Keywords)
}

func TestLocalKeywords(t *testing.T) {
	s := testStripper(false)
	assert.Equal(t, []string{"KW_B", "KW_C"}, s.LocalKeywords([]string{"KW_C", "FOG_LINEAR", "KW_B", "KW_A"}))
	assert.Empty(t, s.LocalKeywords([]string{"KW_A"}))
}
