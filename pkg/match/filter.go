package match

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/storagekit/pkg/provider"
)

// Filter errors.
var (
	ErrInvalidSize  = errors.New("invalid size value")
	ErrInvalidDate  = errors.New("invalid date value")
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// FilterConfig holds listing-level criteria as written in manifests and
// CLI flags. Empty fields impose no constraint.
type FilterConfig struct {
	// MinSize and MaxSize are inclusive bounds: "1024", "10KB", "1.5MiB".
	MinSize string `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// After is inclusive, Before exclusive: "2024-01-15" or RFC 3339.
	After  string `json:"after,omitempty" yaml:"after,omitempty"`
	Before string `json:"before,omitempty" yaml:"before,omitempty"`

	// KeyRegex must match the full object key.
	KeyRegex string `json:"key_regex,omitempty" yaml:"key_regex,omitempty"`
}

// IsZero reports whether no criteria are set.
func (c FilterConfig) IsZero() bool {
	return c == FilterConfig{}
}

// Filter evaluates listing metadata. A nil *Filter admits every object.
type Filter struct {
	minSize int64 // -1: unbounded
	maxSize int64 // -1: unbounded
	after   time.Time
	before  time.Time
	keyRe   *regexp.Regexp
}

// NewFilter parses cfg. It returns nil when cfg sets nothing.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg.IsZero() {
		return nil, nil
	}

	f := &Filter{minSize: -1, maxSize: -1}
	var err error
	if cfg.MinSize != "" {
		if f.minSize, err = ParseSize(cfg.MinSize); err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
	}
	if cfg.MaxSize != "" {
		if f.maxSize, err = ParseSize(cfg.MaxSize); err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
	}
	if f.minSize >= 0 && f.maxSize >= 0 && f.minSize > f.maxSize {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.minSize, f.maxSize)
	}

	if cfg.After != "" {
		if f.after, err = ParseDate(cfg.After); err != nil {
			return nil, fmt.Errorf("after: %w", err)
		}
	}
	if cfg.Before != "" {
		if f.before, err = ParseDate(cfg.Before); err != nil {
			return nil, fmt.Errorf("before: %w", err)
		}
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after.Format(time.RFC3339), f.before.Format(time.RFC3339))
	}

	if cfg.KeyRegex != "" {
		if f.keyRe, err = regexp.Compile(cfg.KeyRegex); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
	}
	return f, nil
}

// Match reports whether obj passes every configured bound.
func (f *Filter) Match(obj provider.ObjectSummary) bool {
	if f == nil {
		return true
	}
	if f.minSize >= 0 && obj.Size < f.minSize {
		return false
	}
	if f.maxSize >= 0 && obj.Size > f.maxSize {
		return false
	}
	if !f.after.IsZero() && obj.LastModified.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !obj.LastModified.Before(f.before) {
		return false
	}
	if f.keyRe != nil && !f.keyRe.MatchString(obj.Key) {
		return false
	}
	return true
}

// String describes the active bounds.
func (f *Filter) String() string {
	if f == nil {
		return "any"
	}
	var parts []string
	if f.minSize >= 0 {
		parts = append(parts, "size>="+FormatSize(f.minSize))
	}
	if f.maxSize >= 0 {
		parts = append(parts, "size<="+FormatSize(f.maxSize))
	}
	if !f.after.IsZero() {
		parts = append(parts, "modified>="+f.after.Format(time.RFC3339))
	}
	if !f.before.IsZero() {
		parts = append(parts, "modified<"+f.before.Format(time.RFC3339))
	}
	if f.keyRe != nil {
		parts = append(parts, "key=~"+f.keyRe.String())
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ", ")
}

// Size units. KB/MB/GB/TB are base-10, KiB/MiB/GiB/TiB base-2.
const (
	KB int64 = 1000
	MB       = 1000 * KB
	GB       = 1000 * MB
	TB       = 1000 * GB

	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
	TiB       = 1024 * GiB
)

var sizeUnits = map[string]int64{
	"": 1, "B": 1,
	"K": KB, "KB": KB, "M": MB, "MB": MB, "G": GB, "GB": GB, "T": TB, "TB": TB,
	"KI": KiB, "KIB": KiB, "MI": MiB, "MIB": MiB, "GI": GiB, "GIB": GiB, "TI": TiB, "TIB": TiB,
}

// ParseSize parses "1024", "10KB", "1.5 MiB" (case-insensitive) into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	mult, ok := sizeUnits[strings.ToUpper(strings.TrimSpace(s[end:]))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidSize, s)
	}

	num, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	bytes := num * float64(mult)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows int64", ErrInvalidSize, s)
	}
	return int64(bytes), nil
}

// FormatSize renders bytes with base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(KiB))
	}
	return fmt.Sprintf("%dB", bytes)
}

// ParseDate parses "2006-01-02" (midnight UTC) or RFC 3339, returning UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
