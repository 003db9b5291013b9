package catalog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agleyzer/shaderwarm/internal/keywords"
	"github.com/agleyzer/shaderwarm/internal/parser"
	"github.com/agleyzer/shaderwarm/internal/variant"
)

type resolver map[string]bool

func (r resolver) HasShader(name string) bool { return r[name] }

func (r resolver) ResolvePassType(shader, passName string) variant.PassType {
	if passName == "ShadowCaster" {
		return variant.ShadowCaster
	}
	return variant.Normal
}

func newBuilder(logs *bytes.Buffer) *Builder {
	p := parser.New(parser.DefaultLineBeginning, resolver{"Standard": true, "Lit": true})
	return NewBuilder(p, slog.New(slog.NewTextHandler(logs, nil)))
}

func ev(rest string) string { return parser.DefaultLineBeginning + " " + rest }

func TestBuild_Deduplicates(t *testing.T) {
	var logs bytes.Buffer
	b := newBuilder(&logs)

	const n = 5
	var lines []string
	for i := 0; i < n; i++ {
		lines = append(lines, ev("Standard, pass: FORWARD, keywords KW_A KW_B, time: 12.5 ms"))
	}

	c := b.Build(lines, nil)

	require.Equal(t, 1, c.Len())
	rec := c.Records()[0]
	assert.Equal(t, n, rec.UploadCount)
	assert.Equal(t, 12.5, rec.UploadTimeMs, "first observation keeps its timing")
}

func TestBuild_OrderAndKeys(t *testing.T) {
	var logs bytes.Buffer
	b := newBuilder(&logs)

	lines := []string{
		ev("Lit, pass: ShadowCaster, keywords B A, time: 1 ms"),
		ev("Standard, pass: FORWARD, keywords A B"),
		ev("Lit, pass: ShadowCaster, keywords A B, time: 2 ms"),
		ev("Lit, pass: ShadowCaster, keywords B A, time: 3 ms"),
		ev("Standard, pass: FORWARD, keywords <no keywords>"),
	}

	c := b.Build(lines, nil)

	want := []variant.Record{
		{Shader: "Lit", PassType: variant.ShadowCaster, Keywords: []string{"B", "A"}, UploadTimeMs: 1, UploadCount: 2},
		{Shader: "Standard", PassType: variant.Normal, Keywords: []string{"A", "B"}, UploadCount: 1},
		{Shader: "Lit", PassType: variant.ShadowCaster, Keywords: []string{"A", "B"}, UploadTimeMs: 2, UploadCount: 1},
		{Shader: "Standard", PassType: variant.Normal, Keywords: []string{}, UploadCount: 1},
	}
	if diff := cmp.Diff(want, c.Records()); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	lines := []string{
		ev("Lit, pass: P, keywords X, time: 1 ms"),
		ev("Standard, pass: P, keywords Y"),
		ev("Lit, pass: P, keywords X, time: 1 ms"),
	}

	var logs bytes.Buffer
	first := newBuilder(&logs).Build(lines, nil).Records()
	second := newBuilder(&logs).Build(lines, nil).Records()

	assert.Empty(t, cmp.Diff(first, second))
}

func TestBuild_FailuresAreCountedAndSkipped(t *testing.T) {
	var logs bytes.Buffer
	b := newBuilder(&logs)

	lines := []string{
		ev("Standard, pass: FORWARD, keywords A"),
		ev("Unknown/Shader, pass: FORWARD, keywords GLOBAL_X"),
		ev("Standard keywords A"),
		ev("Standard, pass: FORWARD, keywords A, time: soon ms"),
	}

	kctx := keywords.NewContext([]string{"GLOBAL_X"}, nil)
	c := b.Build(lines, kctx)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 4, c.Lines)
	assert.Equal(t, 1, c.MissingShaders)
	assert.Equal(t, 2, c.Malformed)
	assert.Equal(t, 3, c.Failures())

	assert.Contains(t, logs.String(), "shader was not found")
	assert.Contains(t, logs.String(), "Unknown/Shader")
	assert.Contains(t, logs.String(), "failed to parse variant")

	// Keywords of lines with unknown shaders still feed the tracker
	assert.Equal(t, []string{"GLOBAL_X"}, kctx.Found())
}

func TestRecordsAreCopies(t *testing.T) {
	c := New()
	c.Add(variant.Record{Shader: "S", Keywords: []string{"A"}})

	recs := c.Records()
	recs[0].Keywords[0] = "MUTATED"
	recs[0].UploadCount = 99

	again := c.Records()
	assert.Equal(t, "A", again[0].Keywords[0])
	assert.Equal(t, 1, again[0].UploadCount)
}
