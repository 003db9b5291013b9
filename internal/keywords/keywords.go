// Package keywords tracks which shader keywords belong to the global
// namespace and partitions keyword lists into global and local parts.
package keywords

import (
	"slices"
	"sort"
)

// Set is an unordered collection of keyword names.
type Set map[string]struct{}

// NewSet creates a Set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	s.Add(names...)
	return s
}

// Add inserts names into the set.
func (s Set) Add(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		s[n] = struct{}{}
	}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the set members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Context carries keyword classification state through one processing run.
// It replaces process-wide tracker state so runs stay independent.
type Context struct {
	candidates Set
	global     Set
	found      Set
}

// NewContext creates a Context. candidates are the global keywords the
// shader system currently declares; known are the global keywords already
// persisted from earlier runs.
func NewContext(candidates, known []string) *Context {
	return &Context{
		candidates: NewSet(candidates...),
		global:     NewSet(known...),
		found:      NewSet(),
	}
}

// Observe records the keywords of one log line. Keywords that are declared
// global become part of the global set.
func (c *Context) Observe(keywords []string) {
	for _, k := range keywords {
		if c.candidates.Has(k) {
			c.found.Add(k)
			c.global.Add(k)
		}
	}
}

// AddGlobal marks keywords as global without checking the candidate set,
// as when a live session reports them as enabled global keywords.
func (c *Context) AddGlobal(keywords ...string) {
	c.global.Add(keywords...)
}

// Found returns the declared global keywords observed during this run, sorted.
func (c *Context) Found() []string {
	return c.found.Sorted()
}

// IsGlobal reports whether keyword is classified as global.
func (c *Context) IsGlobal(keyword string) bool {
	return c.global.Has(keyword)
}

// Global returns a copy of the global keyword set.
func (c *Context) Global() Set {
	out := make(Set, len(c.global))
	for k := range c.global {
		out[k] = struct{}{}
	}
	return out
}

// Local returns the non-global keywords, sorted and de-duplicated.
func (c *Context) Local(keywords []string) []string {
	return Local(keywords, c.global)
}

// Local returns keywords minus global, sorted and de-duplicated.
func Local(keywords []string, global Set) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k == "" || global.Has(k) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// Union appends to existing the names it does not contain yet. Existing
// order is kept and new names are appended in sorted order, so persisted
// lists only ever grow.
func Union(existing []string, names ...string) []string {
	seen := NewSet(existing...)
	add := NewSet()
	for _, n := range names {
		if !seen.Has(n) {
			add.Add(n)
		}
	}
	out := append([]string(nil), existing...)
	return append(out, add.Sorted()...)
}
