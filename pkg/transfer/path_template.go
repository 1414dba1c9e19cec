package transfer

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// PathMode selects how sync maps a source key to its target key.
type PathMode string

const (
	// PathFlatten keeps only the basename: DstPrefix/<filename>.
	PathFlatten PathMode = "flatten"

	// PathPreserve keeps nesting below the source prefix:
	// DstPrefix/<key relative to SrcPrefix>.
	PathPreserve PathMode = "preserve"
)

// ParsePathMode accepts "flatten", "preserve" or "" (flatten).
func ParsePathMode(s string) (PathMode, error) {
	switch PathMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PathFlatten:
		return PathFlatten, nil
	case PathPreserve:
		return PathPreserve, nil
	}
	return "", fmt.Errorf("unknown path mode %q (want %q or %q)", s, PathFlatten, PathPreserve)
}

// template returns the path template equivalent of the mode.
func (m PathMode) template() string {
	if m == PathPreserve {
		return "{rel}"
	}
	return "{filename}"
}

// sourceKey is the key being mapped plus its position under the sync prefix.
type sourceKey struct {
	key string
	rel string
}

type pathTemplatePart interface {
	append(dst *strings.Builder, src sourceKey) error
}

type literalPart string

type filenamePart struct{}

type keyPart struct{}

type relPart struct{}

type dirPart struct{ idx int }

func (p literalPart) append(dst *strings.Builder, _ sourceKey) error {
	dst.WriteString(string(p))
	return nil
}

func (p filenamePart) append(dst *strings.Builder, src sourceKey) error {
	_, filename := splitKey(src.key)
	dst.WriteString(filename)
	return nil
}

func (p keyPart) append(dst *strings.Builder, src sourceKey) error {
	dst.WriteString(src.key)
	return nil
}

func (p relPart) append(dst *strings.Builder, src sourceKey) error {
	dst.WriteString(src.rel)
	return nil
}

func (p dirPart) append(dst *strings.Builder, src sourceKey) error {
	dirs, _ := splitKey(src.key)
	if p.idx < 0 || p.idx >= len(dirs) {
		return fmt.Errorf("dir[%d] out of range for %q", p.idx, src.key)
	}
	dst.WriteString(dirs[p.idx])
	return nil
}

// PathTemplate maps a source key to a target key below the sync
// destination prefix.
//
// Supported placeholders:
//   - {filename}: final path segment
//   - {rel}: key relative to the sync source prefix
//   - {dir[n]}: nth directory component of the full key (0-based)
//   - {key}: full source key
type PathTemplate struct {
	raw   string
	parts []pathTemplatePart
}

// String returns the template source.
func (t *PathTemplate) String() string {
	return t.raw
}

// Apply renders the template for key, listed under prefix.
func (t *PathTemplate) Apply(key, prefix string) (string, error) {
	src := sourceKey{key: key, rel: relativeKey(prefix, key)}

	var b strings.Builder
	for _, part := range t.parts {
		if err := part.append(&b, src); err != nil {
			return "", err
		}
	}

	out := b.String()
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	out = strings.TrimPrefix(out, "/")
	if out == "" || strings.HasSuffix(out, "/") {
		return "", fmt.Errorf("path template %q produced no file name for %q", t.raw, key)
	}
	return out, nil
}

// CompilePathTemplate parses a template string into a PathTemplate.
// An empty template maps every key to its basename.
func CompilePathTemplate(template string) (*PathTemplate, error) {
	if template == "" {
		template = PathFlatten.template()
	}

	var parts []pathTemplatePart
	s := template
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open == -1 {
			parts = append(parts, literalPart(s))
			break
		}
		if open > 0 {
			parts = append(parts, literalPart(s[:open]))
			s = s[open:]
		}

		closeIdx := strings.IndexByte(s, '}')
		if closeIdx == -1 {
			return nil, fmt.Errorf("unclosed placeholder in %q", template)
		}

		placeholder := s[1:closeIdx]
		s = s[closeIdx+1:]

		part, err := parsePlaceholder(placeholder)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return &PathTemplate{raw: template, parts: parts}, nil
}

func parsePlaceholder(p string) (pathTemplatePart, error) {
	switch {
	case p == "filename":
		return filenamePart{}, nil
	case p == "key":
		return keyPart{}, nil
	case p == "rel":
		return relPart{}, nil
	case strings.HasPrefix(p, "dir[") && strings.HasSuffix(p, "]"):
		nStr := strings.TrimSuffix(strings.TrimPrefix(p, "dir["), "]")
		idx, err := strconv.Atoi(nStr)
		if err != nil {
			return nil, fmt.Errorf("invalid dir index %q", nStr)
		}
		return dirPart{idx: idx}, nil
	default:
		return nil, fmt.Errorf("unsupported placeholder {%s}", p)
	}
}

func splitKey(key string) (dirs []string, filename string) {
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" {
		return nil, ""
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return nil, parts[0]
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// relativeKey strips the directory named by prefix from key.
//
// A prefix ending in "/" is a directory. A prefix naming a folder
// ("folder_a" for "folder_a/x.csv") is treated as "folder_a/". Otherwise the
// prefix is cut back to its last "/" so partial segments are never split.
func relativeKey(prefix, key string) string {
	if !strings.HasPrefix(key, prefix) {
		return key
	}
	dir := prefix
	switch {
	case prefix == "" || strings.HasSuffix(prefix, "/"):
	case len(key) > len(prefix) && key[len(prefix)] == '/':
		dir = prefix + "/"
	default:
		dir = prefix[:strings.LastIndex(prefix, "/")+1]
	}
	rel := strings.TrimPrefix(key, dir)
	if rel == "" {
		return path.Base(key)
	}
	return rel
}

// joinKey places name below prefix with exactly one separator.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
