package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Observe(t *testing.T) {
	ctx := NewContext([]string{"FOG_LINEAR", "SHADOWS_SOFT", "LIGHTMAP_ON"}, []string{"PERSISTED"})

	ctx.Observe([]string{"FOG_LINEAR", "_NORMALMAP"})
	ctx.Observe([]string{"SHADOWS_SOFT", "FOG_LINEAR"})
	ctx.Observe(nil)

	assert.Equal(t, []string{"FOG_LINEAR", "SHADOWS_SOFT"}, ctx.Found())
	assert.True(t, ctx.IsGlobal("PERSISTED"))
	assert.True(t, ctx.IsGlobal("FOG_LINEAR"))
	assert.False(t, ctx.IsGlobal("LIGHTMAP_ON"), "declared but never observed")
	assert.False(t, ctx.IsGlobal("_NORMALMAP"))
}

func TestContext_Independent(t *testing.T) {
	a := NewContext([]string{"G"}, nil)
	b := NewContext([]string{"G"}, nil)

	a.Observe([]string{"G"})

	assert.True(t, a.IsGlobal("G"))
	assert.False(t, b.IsGlobal("G"), "contexts must not share state")
}

func TestContext_GlobalIsCopy(t *testing.T) {
	ctx := NewContext(nil, []string{"G"})
	g := ctx.Global()
	g.Add("OTHER")

	assert.False(t, ctx.IsGlobal("OTHER"))
}

func TestLocal(t *testing.T) {
	global := NewSet("KW_A", "FOG")

	tests := []struct {
		name     string
		keywords []string
		want     []string
	}{
		{"removes globals and sorts", []string{"KW_C", "KW_A", "KW_B"}, []string{"KW_B", "KW_C"}},
		{"all global", []string{"FOG", "KW_A"}, []string{}},
		{"empty", nil, []string{}},
		{"duplicates collapse", []string{"X", "X", ""}, []string{"X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Local(tt.keywords, global)
			assert.Equal(t, tt.want, got)
			for _, k := range got {
				assert.False(t, global.Has(k), "global keyword %s leaked into local set", k)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	got := Union([]string{"Z", "A"}, "M", "A", "B", "M")
	assert.Equal(t, []string{"Z", "A", "B", "M"}, got)

	assert.Equal(t, []string{"X"}, Union(nil, "X"))
	assert.Empty(t, Union(nil))
}
