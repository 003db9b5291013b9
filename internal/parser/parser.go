// Package parser turns "shader variant uploaded" log lines into variant records.
package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agleyzer/shaderwarm/internal/variant"
)

// DefaultLineBeginning is the marker the runtime prints before every upload event.
const DefaultLineBeginning = "Uploaded shader variant to the GPU driver:"

// NoKeywords is the token the runtime prints for a variant without keywords.
const NoKeywords = "<no keywords>"

var (
	// ErrMalformedLine reports that a required field marker was missing or unparsable.
	ErrMalformedLine = errors.New("malformed line")

	// ErrShaderNotFound reports that the shader named by a line could not be resolved.
	ErrShaderNotFound = errors.New("shader not found")
)

// LineError describes why a single log line was rejected.
type LineError struct {
	Line   string
	Field  string
	Shader string
	Err    error
}

func (e *LineError) Error() string {
	if e.Shader != "" {
		return fmt.Sprintf("%v: shader %q (field %s) in line %q", e.Err, e.Shader, e.Field, e.Line)
	}
	return fmt.Sprintf("%v: field %s in line %q", e.Err, e.Field, e.Line)
}

func (e *LineError) Unwrap() error { return e.Err }

// Resolver looks shaders up in the host's shader registry.
type Resolver interface {
	// HasShader reports whether a shader with the given name exists.
	HasShader(name string) bool

	// ResolvePassType maps a pass name of a shader to its pass type
	// using the pass's LightMode tag.
	ResolvePassType(shader, passName string) variant.PassType
}

// field is one named segment of a log line. The value starts right after
// prefix and runs to the first terminator found, checked in listed order.
// When none is found the value runs to end of line if toEOL is set.
type field struct {
	name   string
	prefix string
	ends   []string
	toEOL  bool
}

const timeMarker = ", time:"

var (
	passField     = field{name: "pass", prefix: "pass: ", ends: []string{", stage:", ", keywords"}}
	keywordsField = field{name: "keywords", prefix: "keywords ", ends: []string{", time"}, toEOL: true}
	timeField     = field{name: "time", prefix: "time: ", ends: []string{" ms"}}
)

// extract returns the trimmed value of f found at or after from,
// and the offset where the value ends.
func (f field) extract(line string, from int) (string, int, bool) {
	if from > len(line) {
		return "", 0, false
	}
	i := strings.Index(line[from:], f.prefix)
	if i < 0 {
		return "", 0, false
	}
	start := from + i + len(f.prefix)

	for _, end := range f.ends {
		if j := strings.Index(line[start:], end); j >= 0 {
			return strings.TrimSpace(line[start : start+j]), start + j, true
		}
	}
	if f.toEOL {
		return strings.TrimSpace(line[start:]), len(line), true
	}
	return "", 0, false
}

// Parser parses individual upload log lines.
type Parser struct {
	lineBeginning string
	shaderField   field
	resolver      Resolver
}

// New creates a Parser for lines containing lineBeginning.
func New(lineBeginning string, resolver Resolver) *Parser {
	if lineBeginning == "" {
		lineBeginning = DefaultLineBeginning
	}
	return &Parser{
		lineBeginning: lineBeginning,
		shaderField: field{
			name:   "shader",
			prefix: lineBeginning,
			ends:   []string{" (instance", ", pass:"},
		},
		resolver: resolver,
	}
}

// LineBeginning returns the marker this parser looks for.
func (p *Parser) LineBeginning() string {
	return p.lineBeginning
}

// Parse extracts a variant record from one log line. Failures are returned
// as *LineError wrapping ErrMalformedLine or ErrShaderNotFound.
func (p *Parser) Parse(line string) (variant.Record, error) {
	fail := func(f, shader string, err error) (variant.Record, error) {
		return variant.Record{}, &LineError{Line: line, Field: f, Shader: shader, Err: err}
	}

	shader, pos, ok := p.shaderField.extract(line, 0)
	if !ok || shader == "" {
		return fail(p.shaderField.name, "", ErrMalformedLine)
	}
	if p.resolver != nil && !p.resolver.HasShader(shader) {
		return fail(p.shaderField.name, shader, ErrShaderNotFound)
	}

	passName, pos, ok := passField.extract(line, pos)
	if !ok {
		return fail(passField.name, shader, ErrMalformedLine)
	}

	hasTime := strings.Contains(line[pos:], timeMarker)
	kwField := keywordsField
	if !hasTime {
		kwField.ends = nil
	}
	rawKeywords, pos, ok := kwField.extract(line, pos)
	if !ok {
		return fail(keywordsField.name, shader, ErrMalformedLine)
	}

	var uploadTime float64
	if hasTime {
		raw, _, ok := timeField.extract(line, pos)
		if !ok {
			return fail(timeField.name, shader, ErrMalformedLine)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fail(timeField.name, shader, fmt.Errorf("%w: %v", ErrMalformedLine, err))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fail(timeField.name, shader, fmt.Errorf("%w: upload time %q is not finite", ErrMalformedLine, raw))
		}
		uploadTime = v
	}

	pass := variant.Normal
	if p.resolver != nil {
		pass = p.resolver.ResolvePassType(shader, passName)
	}

	return variant.Record{
		Shader:       shader,
		PassType:     pass,
		Keywords:     SplitKeywords(rawKeywords),
		UploadTimeMs: uploadTime,
		UploadCount:  1,
	}, nil
}

// Keywords extracts only the keyword list of a line. It does not resolve
// the shader, so lines naming unknown shaders still report their keywords.
func (p *Parser) Keywords(line string) ([]string, bool) {
	kwField := keywordsField
	if !strings.Contains(line, timeMarker) {
		kwField.ends = nil
	}
	raw, _, ok := kwField.extract(line, 0)
	if !ok {
		return nil, false
	}
	return SplitKeywords(raw), true
}

// SplitKeywords splits a space separated keyword list. The NoKeywords token
// and an empty string both yield an empty, non-nil slice.
func SplitKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == NoKeywords {
		return []string{}
	}
	return strings.Split(raw, " ")
}
