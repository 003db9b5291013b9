// Package report writes the compiled-variant report: one line for every
// variant that survived stripping during a build.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Compiled describes one variant the build compiled.
type Compiled struct {
	Shader       string
	GraphicsTier string
	Platform     string
	BuildTarget  string
	PassType     string
	PassName     string
	ShaderType   string
	Keywords     []string
}

// String formats the report line, without a trailing newline.
func (c Compiled) String() string {
	return fmt.Sprintf("Compiled: %s|Graphics:%s|Platform:%s|BuildTarget:%s|%s|%s|%s|%s",
		c.Shader, c.GraphicsTier, c.Platform, c.BuildTarget,
		c.PassType, c.PassName, c.ShaderType, strings.Join(c.Keywords, " "))
}

// Writer appends report lines to a file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a Writer for the report at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the report path.
func (w *Writer) Path() string {
	return w.path
}

// Reset truncates the report, creating its directory if needed.
// It is called once at the start of every processing run.
func (w *Writer) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(w.path, nil, 0o644); err != nil {
		return fmt.Errorf("reset report: %w", err)
	}
	return nil
}

// Append adds lines to the end of the report.
func (w *Writer) Append(lines ...Compiled) error {
	if len(lines) == 0 {
		return nil
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.String())
		b.WriteString("\n")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return f.Close()
}
