// Package match selects objects for batch operations.
//
// A Matcher applies doublestar include/exclude globs to object keys; a
// Filter narrows by size and modification time using listing data only.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a glob cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config configures a Matcher.
type Config struct {
	// Includes are globs a key must match (any). Empty matches every key.
	Includes []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Excludes are globs a key must not match (any).
	Excludes []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// IncludeHidden admits keys with a segment starting with '.'.
	IncludeHidden bool `json:"include_hidden,omitempty" yaml:"include_hidden,omitempty"`
}

// IsZero reports whether the config selects every non-hidden key.
func (c Config) IsZero() bool {
	return len(c.Includes) == 0 && len(c.Excludes) == 0 && !c.IncludeHidden
}

// Matcher evaluates globs against full object keys.
//
// A nil *Matcher matches every key. Safe for concurrent use.
type Matcher struct {
	includes      []string
	excludes      []string
	includeHidden bool
}

// New compiles cfg. Backslash separators in patterns are converted to '/'
// unless they escape a glob metacharacter.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes, includeHidden: cfg.IncludeHidden}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		norm := NormalizePattern(p)
		if norm == "" || !doublestar.ValidatePattern(norm) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, norm)
	}
	return out, nil
}

// Match reports whether key is selected. Keys are matched as-is.
func (m *Matcher) Match(key string) bool {
	if m == nil {
		return true
	}
	if !m.includeHidden && IsHidden(key) {
		return false
	}
	if len(m.includes) > 0 && !anyMatch(m.includes, key) {
		return false
	}
	return !anyMatch(m.excludes, key)
}

// Includes returns the normalized include patterns.
func (m *Matcher) Includes() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.includes...)
}

// Excludes returns the normalized exclude patterns.
func (m *Matcher) Excludes() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.excludes...)
}

func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		// Patterns are validated in New.
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	return false
}

const globEscapable = `*?[]{}\`

// NormalizePattern converts unescaped backslashes to forward slashes,
// keeping escapes of glob metacharacters (\*, \?, \[ ...) intact. A
// backslash before "**" is a separator, since "**" only matches whole
// segments.
//
//	"data\2024\**"    -> "data/2024/**"
//	"data/file\*.txt" -> "data/file\*.txt"
func NormalizePattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+2 < len(runes) && runes[i+1] == '*' && runes[i+2] == '*' {
			b.WriteRune('/')
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			b.WriteRune('\\')
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteRune('/')
	}
	return b.String()
}

// IsHidden reports whether any '/'-separated segment of key starts with '.'.
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
