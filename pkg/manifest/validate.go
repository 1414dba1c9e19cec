package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/storagekit/internal/assets/schemas"
)

// ErrValidationFailed is matched by every schema failure.
var ErrValidationFailed = errors.New("manifest validation failed")

// Issue is one schema violation at a JSON pointer into the document.
type Issue struct {
	Pointer string
	Keyword string
	Message string
}

// Field names the offending manifest field, e.g. "target.repository", or
// "(root)" for document-level issues.
func (i Issue) Field() string {
	f := strings.ReplaceAll(strings.TrimPrefix(i.Pointer, "/"), "/", ".")
	if f == "" {
		return "(root)"
	}
	return f
}

func (i Issue) String() string {
	return i.Field() + ": " + i.Message
}

// Issues is the error returned for a manifest that fails the schema,
// ordered by pointer.
type Issues []Issue

func (is Issues) Error() string {
	parts := make([]string, len(is))
	for i, issue := range is {
		parts[i] = issue.String()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (is Issues) Unwrap() error { return ErrValidationFailed }

// Fields lists the distinct offending fields.
func (is Issues) Fields() []string {
	seen := make(map[string]bool, len(is))
	var out []string
	for _, issue := range is {
		if f := issue.Field(); !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

var syncManifestSchema = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.SyncManifestSchema) == 0 {
		return nil, errors.New("embedded sync-manifest schema is empty")
	}
	v, err := schema.NewValidator(schemasassets.SyncManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile sync-manifest schema: %w", err)
	}
	return v, nil
})

// CheckSchema validates a JSON document against the embedded sync-manifest
// schema. Unknown properties are violations. Failures are Issues.
func CheckSchema(doc []byte) error {
	v, err := syncManifestSchema()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(doc)
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}

	var issues Issues
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		issues = append(issues, Issue{Pointer: d.Pointer, Keyword: d.Keyword, Message: d.Message})
	}
	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(a, b int) bool { return issues[a].Pointer < issues[b].Pointer })
	return issues
}

// ValidateSchema checks m against the schema as it would be written out.
// Unknown fields cannot occur here; LoadFromBytes checks the raw document.
func (m *Manifest) ValidateSchema() error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return CheckSchema(doc)
}
