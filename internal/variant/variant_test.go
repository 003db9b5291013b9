package variant

import (
	"testing"
)

func TestPassTypeForLightMode(t *testing.T) {
	tests := []struct {
		lightMode string
		want      PassType
	}{
		{"", Normal},
		{"   ", Normal},
		{"ShadowCaster", ShadowCaster},
		{"shadowcaster", ShadowCaster},
		{"Meta", Meta},
		{"SRPDefaultUnlit", ScriptableRenderPipelineDefaultUnlit},
		{"UniversalForward", ScriptableRenderPipeline},
		{"ForwardBase", ScriptableRenderPipeline},
		{"SomethingCustom", ScriptableRenderPipeline},
	}

	for _, tt := range tests {
		t.Run(tt.lightMode, func(t *testing.T) {
			if got := PassTypeForLightMode(tt.lightMode); got != tt.want {
				t.Errorf("PassTypeForLightMode(%q) = %v, want %v", tt.lightMode, got, tt.want)
			}
		})
	}
}

func TestPassType_TextRoundTrip(t *testing.T) {
	for _, pt := range []PassType{Normal, ShadowCaster, Meta, ScriptableRenderPipeline, ScriptableRenderPipelineDefaultUnlit} {
		text, err := pt.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", pt, err)
		}
		var got PassType
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if got != pt {
			t.Errorf("round trip %v -> %q -> %v", pt, text, got)
		}
	}

	var pt PassType
	if err := pt.UnmarshalText([]byte("Deferred")); err == nil {
		t.Error("expected error for unknown pass type name")
	}
}

func TestRecordKey(t *testing.T) {
	a := Record{Shader: "Standard", PassType: Normal, Keywords: []string{"KW_A", "KW_B"}}
	b := Record{Shader: "Standard", PassType: Normal, Keywords: []string{"KW_B", "KW_A"}}
	empty := Record{Shader: "Standard", PassType: Normal}

	if a.Key() != "Standard|Normal|KW_A KW_B" {
		t.Errorf("unexpected key %q", a.Key())
	}
	if a.Key() == b.Key() {
		t.Error("keyword order must be part of the key")
	}
	if empty.Key() != "Standard|Normal|" {
		t.Errorf("unexpected key for keywordless record %q", empty.Key())
	}
}

func TestRecordClone(t *testing.T) {
	r := Record{Shader: "Standard", Keywords: []string{"KW_A"}, UploadCount: 1}
	c := r.Clone()
	c.Keywords[0] = "CHANGED"

	if r.Keywords[0] != "KW_A" {
		t.Error("Clone shares the keyword slice with the original")
	}
}
