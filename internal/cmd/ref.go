package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/storagekit/pkg/provider"
)

// ErrInvalidRef indicates an object reference could not be parsed.
var ErrInvalidRef = errors.New("invalid object reference")

// ObjectRef is an object or prefix named on the command line.
//
// Accepted forms:
//   - path/to/object.csv            (active repository)
//   - s3://repository/path/to/object.csv
//   - file://repository/prefix/
//
// The scheme, when present, must name the connected provider.
type ObjectRef struct {
	// Provider is the scheme, or "" for a bare path.
	Provider provider.ProviderType

	// Repository is empty for bare paths.
	Repository string

	// Path is the object path or prefix.
	Path string
}

// String returns the reference in the form it was given.
func (r ObjectRef) String() string {
	if r.Repository == "" {
		return r.Path
	}
	return fmt.Sprintf("%s://%s/%s", r.Provider, r.Repository, r.Path)
}

// IsPrefix reports whether the reference names a prefix.
func (r ObjectRef) IsPrefix() bool {
	return r.Path == "" || strings.HasSuffix(r.Path, "/")
}

// ParseRef parses a command-line object reference.
func ParseRef(arg string) (ObjectRef, error) {
	if arg == "" {
		return ObjectRef{}, fmt.Errorf("%w: empty reference", ErrInvalidRef)
	}

	schemeEnd := strings.Index(arg, "://")
	if schemeEnd == -1 {
		return ObjectRef{Path: strings.TrimPrefix(arg, "/")}, nil
	}

	p, err := provider.ParseProviderType(arg[:schemeEnd])
	if err != nil {
		return ObjectRef{}, err
	}

	remainder := arg[schemeEnd+3:]
	repo, path, _ := strings.Cut(remainder, "/")
	if repo == "" {
		return ObjectRef{}, fmt.Errorf("%w: missing repository in %s", ErrInvalidRef, arg)
	}
	return ObjectRef{Provider: p, Repository: repo, Path: path}, nil
}

// resolve fills a bare reference with the active repository and checks
// the scheme against the connected provider.
func (r ObjectRef) resolve(connected provider.ProviderType, active string) (ObjectRef, error) {
	if r.Provider != "" && r.Provider != connected {
		return r, fmt.Errorf("%w: %s reference on a %s connection", provider.ErrUnsupportedProvider, r.Provider, connected)
	}
	if r.Repository == "" {
		r.Repository = active
	}
	r.Provider = connected
	return r, nil
}
