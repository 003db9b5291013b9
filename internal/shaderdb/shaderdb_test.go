package shaderdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agleyzer/shaderwarm/internal/variant"
)

const manifestYAML = `
shaders:
  - name: Standard
    passes:
      - name: FORWARD
  - name: Universal Render Pipeline/Lit
    passes:
      - name: ForwardLit
        tags: {LightMode: UniversalForward}
      - name: ShadowCaster
        tags: {lightmode: ShadowCaster}
      - name: Meta
        tags: {LightMode: META}
      - name: Unlit
        tags: {LightMode: SRPDefaultUnlit}
      - name: Custom
        tags: {LightMode: MyOwnPass}
materials:
  - name: Ground
    shader: Standard
    keywords: [_NORMALMAP, FOG_LINEAR]
global_keywords: [FOG_LINEAR, SHADOWS_SOFT]
enabled_global_keywords: [FOG_LINEAR]
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	r, err := Load(writeManifest(t, manifestYAML))
	require.NoError(t, err)

	assert.True(t, r.HasShader("Standard"))
	assert.False(t, r.HasShader("standard"), "lookups are exact")
	assert.Equal(t, []string{"Standard", "Universal Render Pipeline/Lit"}, r.ShaderNames())
	assert.Equal(t, []string{"FOG_LINEAR", "SHADOWS_SOFT"}, r.GlobalKeywords())
	assert.Equal(t, []string{"FOG_LINEAR"}, r.EnabledGlobalKeywords())

	mats := r.Materials()
	require.Len(t, mats, 1)
	assert.Equal(t, "Standard", mats[0].Shader)
	assert.Equal(t, []string{"_NORMALMAP", "FOG_LINEAR"}, mats[0].Keywords)

	s, ok := r.Shader("Standard")
	require.True(t, ok)
	assert.Len(t, s.Passes, 1)
}

func TestResolvePassType(t *testing.T) {
	r, err := Load(writeManifest(t, manifestYAML))
	require.NoError(t, err)

	tests := []struct {
		shader, pass string
		want         variant.PassType
	}{
		{"Standard", "FORWARD", variant.Normal},
		{"Standard", "NoSuchPass", variant.Normal},
		{"Missing", "FORWARD", variant.Normal},
		{"Universal Render Pipeline/Lit", "ForwardLit", variant.ScriptableRenderPipeline},
		{"Universal Render Pipeline/Lit", "ShadowCaster", variant.ShadowCaster},
		{"Universal Render Pipeline/Lit", "Meta", variant.Meta},
		{"Universal Render Pipeline/Lit", "Unlit", variant.ScriptableRenderPipelineDefaultUnlit},
		{"Universal Render Pipeline/Lit", "Custom", variant.ScriptableRenderPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.shader+"/"+tt.pass, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolvePassType(tt.shader, tt.pass))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Manifest{Shaders: []Shader{{Name: ""}}})
	assert.Error(t, err)

	_, err = New(Manifest{Shaders: []Shader{{Name: "A"}, {Name: "A"}}})
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeManifest(t, "shaders: [oops"))
	assert.Error(t, err)
}

func TestMaterialsAreCopies(t *testing.T) {
	r, err := New(Manifest{Materials: []Material{{Name: "M", Shader: "S", Keywords: []string{"A"}}}})
	require.NoError(t, err)

	mats := r.Materials()
	mats[0].Keywords[0] = "CHANGED"

	assert.Equal(t, "A", r.Materials()[0].Keywords[0])
}

func TestPermissive(t *testing.T) {
	r := Permissive()

	assert.True(t, r.HasShader("Anything/Goes"))
	assert.False(t, r.HasShader(""))
	assert.Equal(t, variant.Normal, r.ResolvePassType("Anything/Goes", "FORWARD"))
	assert.Empty(t, r.Materials())
	assert.Empty(t, r.GlobalKeywords())
}
