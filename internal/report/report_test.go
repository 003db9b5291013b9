package report

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiled_String(t *testing.T) {
	c := Compiled{
		Shader:       "Standard",
		GraphicsTier: "Tier1",
		Platform:     "Metal",
		BuildTarget:  "iOS",
		PassType:     "Normal",
		PassName:     "FORWARD",
		ShaderType:   "Fragment",
		Keywords:     []string{"FOG_LINEAR", "_NORMALMAP"},
	}
	assert.Equal(t,
		"Compiled: Standard|Graphics:Tier1|Platform:Metal|BuildTarget:iOS|Normal|FORWARD|Fragment|FOG_LINEAR _NORMALMAP",
		c.String())

	c.Keywords = nil
	assert.Equal(t, "Compiled: Standard|Graphics:Tier1|Platform:Metal|BuildTarget:iOS|Normal|FORWARD|Fragment|", c.String())
}

func TestWriter_ResetAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Artifact", "ShaderVariantsCompiled.txt")
	w := NewWriter(path)

	require.NoError(t, w.Append(Compiled{Shader: "Old"}))
	require.NoError(t, w.Reset())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Append(Compiled{Shader: "A"}, Compiled{Shader: "B"}))
	require.NoError(t, w.Append())
	require.NoError(t, w.Append(Compiled{Shader: "C"}))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Compiled: A|Graphics:|Platform:|BuildTarget:||||\n"+
			"Compiled: B|Graphics:|Platform:|BuildTarget:||||\n"+
			"Compiled: C|Graphics:|Platform:|BuildTarget:||||\n",
		string(data))
}

func TestWriter_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	w := NewWriter(path)
	require.NoError(t, w.Reset())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(Compiled{Shader: "S"}))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, splitLines(string(data)), 20)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
