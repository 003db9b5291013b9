// Package logsection splits the upload log into its previously processed
// and freshly appended sections and merges them into one normalized list.
package logsection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agleyzer/shaderwarm/internal/fsutil"
)

// DefaultEndMarker separates lines already processed from lines appended since.
const DefaultEndMarker = "// new log entries below this line in case keeping the previous logs is necessary"

// DefaultStartingLine is printed by the runtime once variant logging begins.
const DefaultStartingLine = "ShaderPreCompiler: Disabled, debugging variants to pre-compile."

// KeyFunc returns the variant key of a normalized line, or false when the
// line cannot be parsed.
type KeyFunc func(line string) (string, bool)

// Options configures the section markers.
type Options struct {
	// StartingLine is the sentinel before which everything is ignored
	StartingLine string

	// EndMarker separates the old section from the new one
	EndMarker string

	// LineBeginning selects variant lines; everything else is dropped
	LineBeginning string
}

func (o Options) withDefaults() Options {
	if o.EndMarker == "" {
		o.EndMarker = DefaultEndMarker
	}
	return o
}

// Sections is the log split around the end marker.
type Sections struct {
	// Old holds variant lines recorded before the last end marker
	Old []string

	// New holds variant lines appended after the last end marker
	New []string

	// HasEndMarker reports whether the log contained an end marker
	HasEndMarker bool
}

// Split discards everything up to the last starting line, splits the rest
// at the last end marker and keeps only variant lines, each trimmed to
// begin at the line beginning marker.
func Split(lines []string, opts Options) Sections {
	opts = opts.withDefaults()

	start := 0
	if opts.StartingLine != "" {
		if i := lastIndex(lines, opts.StartingLine); i >= 0 {
			start = i + 1
		}
	}
	rest := lines[start:]

	end := lastIndex(rest, opts.EndMarker)
	if end < 0 {
		return Sections{Old: filter(rest, opts.LineBeginning)}
	}
	return Sections{
		Old:          filter(rest[:end], opts.LineBeginning),
		New:          filter(rest[end+1:], opts.LineBeginning),
		HasEndMarker: true,
	}
}

// Merge returns the surviving old lines followed by all new lines. An old
// line is dropped when a new line has the same variant key, so a variant
// uploaded again is counted from its fresh observations only.
func Merge(lines []string, opts Options, key KeyFunc) []string {
	s := Split(lines, opts)
	if len(s.New) == 0 {
		return s.Old
	}

	newKeys := make(map[string]struct{}, len(s.New))
	for _, line := range s.New {
		if k, ok := key(line); ok {
			newKeys[k] = struct{}{}
		}
	}

	merged := make([]string, 0, len(s.Old)+len(s.New))
	for _, line := range s.Old {
		if k, ok := key(line); ok {
			if _, superseded := newKeys[k]; superseded {
				continue
			}
		}
		merged = append(merged, line)
	}
	return append(merged, s.New...)
}

// Render produces the log content written back after a merge: the starting
// line, the merged lines, a blank line and the end marker.
func Render(lines []string, opts Options) string {
	opts = opts.withDefaults()

	var b strings.Builder
	b.WriteString(opts.StartingLine)
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(opts.EndMarker)
	b.WriteString("\n")
	return b.String()
}

// File is the upload log on disk.
type File struct {
	path   string
	opts   Options
	logger *slog.Logger
}

// NewFile creates a File for the log at path.
func NewFile(path string, opts Options, logger *slog.Logger) *File {
	return &File{path: path, opts: opts.withDefaults(), logger: logger}
}

// Path returns the log file path.
func (f *File) Path() string {
	return f.path
}

// Ensure creates the log file, and its directory, holding only the
// starting line when it does not exist yet. It reports whether the file
// was created.
func (f *File) Ensure() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat log file: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create log directory: %w", err)
		}
	}
	if err := os.WriteFile(f.path, []byte(f.opts.StartingLine+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("create log file: %w", err)
	}

	f.logger.Info("created log file", "path", f.path)
	return true, nil
}

// ReadLines reads all lines of the log file.
func (f *File) ReadLines() ([]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	return readLines(file)
}

// Normalize merges the log sections, rewrites the file when the rendered
// content differs from what is on disk, and returns the merged lines.
func (f *File) Normalize(key KeyFunc) ([]string, error) {
	lines, err := f.ReadLines()
	if err != nil {
		return nil, err
	}

	merged := Merge(lines, f.opts, key)

	changed, err := fsutil.WriteFileIfChanged(f.path, []byte(Render(merged, f.opts)), 0o644)
	if err != nil {
		return nil, fmt.Errorf("rewrite log file: %w", err)
	}

	f.logger.Debug("normalized log file",
		"path", f.path,
		"lines", len(lines),
		"variantLines", len(merged),
		"rewritten", changed,
	)
	return merged, nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	// Keyword lists can be long
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return lines, nil
}

func lastIndex(lines []string, sentinel string) int {
	sentinel = strings.TrimSpace(sentinel)
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == sentinel {
			return i
		}
	}
	return -1
}

func filter(lines []string, lineBeginning string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		i := strings.Index(line, lineBeginning)
		if i < 0 {
			continue
		}
		if v := strings.TrimSpace(line[i:]); v != "" {
			out = append(out, v)
		}
	}
	return out
}
