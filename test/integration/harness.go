// Package integration provides integration testing utilities for shaderwarm.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/shaderwarm/internal/config"
	"github.com/agleyzer/shaderwarm/internal/logsection"
	"github.com/agleyzer/shaderwarm/internal/processor"
	"github.com/agleyzer/shaderwarm/internal/server"
	"github.com/agleyzer/shaderwarm/internal/strip"
	"github.com/agleyzer/shaderwarm/internal/warmup"
	"github.com/agleyzer/shaderwarm/internal/watch"
)

const testManifest = `shaders:
  - name: Standard
    passes:
      - name: FORWARD
      - name: ShadowCaster
        tags: {LightMode: ShadowCaster}
  - name: Lit
    passes:
      - name: FORWARD
global_keywords: [FOG_LINEAR]
enabled_global_keywords: [FOG_LINEAR]
`

// TestHarness manages a project directory, a running strip service and
// an optional log watcher.
type TestHarness struct {
	t            *testing.T
	dir          string
	logPath      string
	settingsPath string
	port         int
	proc         *processor.Processor
	ctx          context.Context
	cancel       context.CancelFunc
	done         []chan error
}

// NewTestHarness writes a manifest and settings into a temp directory.
// mutate, when non-nil, adjusts the settings before they are saved.
func NewTestHarness(t *testing.T, mutate func(*config.Settings)) *TestHarness {
	t.Helper()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(manifest, []byte(testManifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	s := config.Default()
	s.LogFilePath = filepath.Join(dir, "player.log")
	s.ManifestPath = manifest
	s.WarmupListPath = filepath.Join(dir, "ShaderVariants", "warmup.yaml")
	s.ReportPath = filepath.Join(dir, "ShaderVariants", "compiled_variants.txt")
	s.ObservationsPath = filepath.Join(dir, "ShaderVariants", "observations.yaml")
	if mutate != nil {
		mutate(s)
	}

	settingsPath := filepath.Join(dir, "settings.yaml")
	if err := s.Save(settingsPath); err != nil {
		t.Fatalf("failed to save settings: %v", err)
	}

	h := &TestHarness{
		t:            t,
		dir:          dir,
		logPath:      s.LogFilePath,
		settingsPath: settingsPath,
		port:         findAvailablePort(t),
	}
	h.proc = processor.New(settingsPath, createTestLogger())
	return h
}

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// AppendLog appends lines to the player log, creating it if needed.
func (h *TestHarness) AppendLog(lines ...string) {
	h.t.Helper()

	f, err := os.OpenFile(h.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		h.t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			h.t.Fatalf("failed to append log line: %v", err)
		}
	}
}

// StartSession appends the runtime's starting line followed by lines.
func (h *TestHarness) StartSession(lines ...string) {
	h.t.Helper()
	h.AppendLog(append([]string{logsection.DefaultStartingLine}, lines...)...)
}

// ReadLog returns the current log contents.
func (h *TestHarness) ReadLog() string {
	h.t.Helper()
	data, err := os.ReadFile(h.logPath)
	if err != nil {
		h.t.Fatalf("failed to read log: %v", err)
	}
	return string(data)
}

// StartService starts the strip decision service.
func (h *TestHarness) StartService() {
	h.t.Helper()

	ctx := h.context()
	srv := server.New(h.proc, h.port, createTestLogger())
	h.run(func() error { return srv.Start(ctx) })

	h.waitForServer(h.url("/health"), 5*time.Second)
	h.t.Logf("strip service started on port %d", h.port)
}

// StartWatcher processes the log whenever it settles after a write.
func (h *TestHarness) StartWatcher(debounce time.Duration) *watch.Watcher {
	h.t.Helper()

	w, err := watch.New(h.logPath, debounce, func(ctx context.Context) error {
		_, err := h.proc.Run(ctx)
		return err
	}, createTestLogger())
	if err != nil {
		h.t.Fatalf("failed to create watcher: %v", err)
	}

	ctx := h.context()
	h.run(func() error { return w.Run(ctx) })
	return w
}

func (h *TestHarness) context() context.Context {
	if h.cancel == nil {
		h.ctx, h.cancel = context.WithCancel(context.Background())
	}
	return h.ctx
}

func (h *TestHarness) run(fn func() error) {
	done := make(chan error, 1)
	h.done = append(h.done, done)
	go func() { done <- fn() }()
}

// Process runs a processing batch through the service.
func (h *TestHarness) Process() map[string]any {
	h.t.Helper()

	status, body := h.do(http.MethodPost, "/process", nil)
	if status != http.StatusOK {
		h.t.Fatalf("process returned %d: %s", status, body)
	}

	var summary map[string]any
	if err := json.Unmarshal(body, &summary); err != nil {
		h.t.Fatalf("failed to decode process summary: %v", err)
	}
	return summary
}

// Strip asks the service which variants of a snippet to compile.
func (h *TestHarness) Strip(shader string, variants ...[]string) server.StripResponse {
	h.t.Helper()

	req := server.StripRequest{
		Snippet: strip.Snippet{Shader: shader, PassType: "Normal", PassName: "FORWARD", ShaderType: "Fragment"},
	}
	for _, kws := range variants {
		req.Variants = append(req.Variants, strip.CompilerVariant{
			GraphicsTier: "Tier1",
			Platform:     "Metal",
			BuildTarget:  "iOS",
			Keywords:     kws,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		h.t.Fatalf("failed to encode strip request: %v", err)
	}
	status, body := h.do(http.MethodPost, "/strip", payload)
	if status != http.StatusOK {
		h.t.Fatalf("strip returned %d: %s", status, body)
	}

	var resp server.StripResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		h.t.Fatalf("failed to decode strip response: %v", err)
	}
	return resp
}

// FetchWarmup fetches and decodes the warm-up collection from the service.
func (h *TestHarness) FetchWarmup() warmup.Collection {
	h.t.Helper()

	status, body := h.do(http.MethodGet, "/warmup", nil)
	if status != http.StatusOK {
		h.t.Fatalf("warmup returned %d: %s", status, body)
	}
	return ParseWarmup(h.t, body)
}

// ReadWarmup decodes the warm-up collection straight from disk.
func (h *TestHarness) ReadWarmup() (warmup.Collection, bool) {
	h.t.Helper()

	s := h.Settings()
	data, err := os.ReadFile(s.WarmupListPath)
	if err != nil {
		return warmup.Collection{}, false
	}
	return ParseWarmup(h.t, data), true
}

// FetchHealth fetches the health endpoint and returns the JSON response.
func (h *TestHarness) FetchHealth() string {
	h.t.Helper()

	status, body := h.do(http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		h.t.Fatalf("unexpected status code: %d", status)
	}
	return string(body)
}

// Settings reloads the settings file.
func (h *TestHarness) Settings() *config.Settings {
	h.t.Helper()

	s, err := config.Load(h.settingsPath)
	if err != nil {
		h.t.Fatalf("failed to load settings: %v", err)
	}
	return s
}

// ReadReport returns the compiled variant report.
func (h *TestHarness) ReadReport() string {
	h.t.Helper()

	data, err := os.ReadFile(h.Settings().ReportPath)
	if err != nil {
		h.t.Fatalf("failed to read report: %v", err)
	}
	return string(data)
}

func (h *TestHarness) do(method, path string, payload []byte) (int, []byte) {
	h.t.Helper()

	req, err := http.NewRequest(method, h.url(path), bytes.NewReader(payload))
	if err != nil {
		h.t.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read %s body: %v", path, err)
	}
	return resp.StatusCode, body
}

func (h *TestHarness) url(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", h.port, path)
}

// Cleanup stops all running services.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.cancel != nil {
		h.cancel()
	}
	for _, done := range h.done {
		select {
		case err := <-done:
			if err != nil {
				h.t.Errorf("service stopped with error: %v", err)
			}
		case <-time.After(15 * time.Second):
			h.t.Error("service did not stop")
		}
	}
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// ParseWarmup decodes a warm-up collection file.
func ParseWarmup(t *testing.T, data []byte) warmup.Collection {
	t.Helper()

	var c warmup.Collection
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("failed to parse warm-up list: %v", err)
	}
	return c
}

// UploadLine formats a variant upload line the way the runtime logs it.
func UploadLine(shader, pass string, keywords []string, timeMs float64) string {
	kws := strings.Join(keywords, " ")
	if kws == "" {
		kws = "<no keywords>"
	}
	return fmt.Sprintf("Uploaded shader variant to the GPU driver: %s, pass: %s, keywords %s, time: %g ms", shader, pass, kws, timeMs)
}

// Keys renders collection entries as shader|pass|keywords strings.
func Keys(c warmup.Collection) []string {
	keys := make([]string, 0, len(c.Variants))
	for _, v := range c.Variants {
		keys = append(keys, fmt.Sprintf("%s|%s|%s", v.Shader, v.PassType, strings.Join(v.Keywords, " ")))
	}
	return keys
}
