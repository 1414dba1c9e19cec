// Package storage is the session object over one provider backend.
//
// A Storage holds exactly one piece of mutable state, the active
// repository. Object operations resolve paths against it; transfers across
// repositories name both sides explicitly. A Storage is not safe for
// concurrent use: run one per logical task.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// DefaultURLTTL is the validity of URLs issued by FileURL when no TTL is
// given.
const DefaultURLTTL = 120 * time.Second

// Observer receives one call per completed operation.
type Observer interface {
	Observe(op string, kind ErrorKind, elapsed time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(op string, kind ErrorKind, elapsed time.Duration)

// Observe calls f.
func (f ObserverFunc) Observe(op string, kind ErrorKind, elapsed time.Duration) {
	f(op, kind, elapsed)
}

// Option configures a Storage.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	codec        *codec.Codec
	engine       transfer.Config
	observer     Observer
	defaultShape codec.Shape
	urlTTL       time.Duration
	repository   string
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec sets the content codec. Default: codec.New().
func WithCodec(c *codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithEngineConfig configures copy/move/sync. The logger defaults to the
// Storage logger.
func WithEngineConfig(cfg transfer.Config) Option {
	return func(o *options) { o.engine = cfg }
}

// WithObserver registers an operation observer, e.g. a metrics recorder.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithDefaultShape sets the shape Read uses for structured extensions when
// none is requested. Default: codec.ShapeTable.
func WithDefaultShape(s codec.Shape) Option {
	return func(o *options) { o.defaultShape = s }
}

// WithURLTTL sets the TTL FileURL uses when none is given. Default:
// DefaultURLTTL.
func WithURLTTL(d time.Duration) Option {
	return func(o *options) { o.urlTTL = d }
}

// WithRepository sets the initial active repository without checking it
// exists. Use SetRepository for a checked selection.
func WithRepository(name string) Option {
	return func(o *options) { o.repository = name }
}

// Storage binds a backend, a codec and a transfer engine to an active
// repository.
type Storage struct {
	backend      provider.Backend
	codec        *codec.Codec
	engine       *transfer.Engine
	logger       *zap.Logger
	observer     Observer
	defaultShape codec.Shape
	urlTTL       time.Duration

	repo string
}

// New creates a Storage over backend with no active repository.
func New(backend provider.Backend, opts ...Option) (*Storage, error) {
	if backend == nil {
		return nil, errors.New("storage: backend is required")
	}

	o := options{
		engine:       transfer.DefaultConfig(),
		defaultShape: codec.ShapeTable,
		urlTTL:       DefaultURLTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.codec == nil {
		o.codec = codec.New()
	}
	if !o.defaultShape.Valid() {
		return nil, fmt.Errorf("storage: %w: %q", codec.ErrUnsupportedShape, o.defaultShape)
	}
	if o.urlTTL <= 0 {
		o.urlTTL = DefaultURLTTL
	}
	if o.engine.Logger == nil {
		o.engine.Logger = o.logger
	}

	engine, err := transfer.New(backend, o.engine)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &Storage{
		backend:      backend,
		codec:        o.codec,
		engine:       engine,
		logger:       o.logger.With(zap.String("provider", backend.Type().String())),
		observer:     o.observer,
		defaultShape: o.defaultShape,
		urlTTL:       o.urlTTL,
		repo:         o.repository,
	}, nil
}

// Provider identifies the backend's provider.
func (s *Storage) Provider() provider.ProviderType {
	return s.backend.Type()
}

// Backend returns the underlying backend.
func (s *Storage) Backend() provider.Backend {
	return s.backend
}

// Repository returns the active repository, or "" when none is set.
func (s *Storage) Repository() string {
	return s.repo
}

// Close releases the backend.
func (s *Storage) Close() error {
	return s.backend.Close()
}

// observe reports an operation to the observer. Call it deferred with a
// pointer to the named error result.
func (s *Storage) observe(op string, start time.Time, errp *error) {
	if s.observer == nil {
		return
	}
	s.observer.Observe(op, KindOf(*errp), time.Since(start))
}

// ListRepositories enumerates every repository visible to the credentials.
func (s *Storage) ListRepositories(ctx context.Context) (repos []provider.Repository, err error) {
	defer s.observe("list_repositories", time.Now(), &err)

	repos, err = s.backend.ListRepositories(ctx)
	if err != nil {
		return nil, opError("list_repositories", "", "", err)
	}
	return repos, nil
}

// CreateRepository creates name. It fails with RepositoryAlreadyExists when
// name is already listed, even if the provider would accept the request.
func (s *Storage) CreateRepository(ctx context.Context, name string) (err error) {
	defer s.observe("create_repository", time.Now(), &err)

	if name == "" {
		return opError("create_repository", "", "", ErrRepositoryNotSet)
	}
	found, err := s.hasRepository(ctx, name)
	if err != nil {
		return opError("create_repository", name, "", err)
	}
	if found {
		return opError("create_repository", name, "", provider.ErrRepositoryExists)
	}
	if err := s.backend.CreateRepository(ctx, name); err != nil {
		return opError("create_repository", name, "", err)
	}
	s.logger.Info("Created repository", zap.String("repository", name))
	return nil
}

// SetRepository makes name the active repository after checking it is
// listed. Selecting the active repository again is allowed.
func (s *Storage) SetRepository(ctx context.Context, name string) (err error) {
	defer s.observe("set_repository", time.Now(), &err)

	if name == "" {
		return opError("set_repository", "", "", ErrRepositoryNotSet)
	}
	found, err := s.hasRepository(ctx, name)
	if err != nil {
		return opError("set_repository", name, "", err)
	}
	if !found {
		return opError("set_repository", name, "", provider.ErrRepositoryNotFound)
	}
	s.repo = name
	s.logger.Debug("Set repository", zap.String("repository", name))
	return nil
}

// SetOrCreateRepository creates name when absent, then makes it active.
func (s *Storage) SetOrCreateRepository(ctx context.Context, name string) (err error) {
	defer s.observe("set_or_create_repository", time.Now(), &err)

	if name == "" {
		return opError("set_or_create_repository", "", "", ErrRepositoryNotSet)
	}
	found, err := s.hasRepository(ctx, name)
	if err != nil {
		return opError("set_or_create_repository", name, "", err)
	}
	if !found {
		err := s.backend.CreateRepository(ctx, name)
		if err != nil && !provider.IsRepositoryExists(err) {
			return opError("set_or_create_repository", name, "", err)
		}
		s.logger.Info("Created repository", zap.String("repository", name))
	}
	s.repo = name
	return nil
}

func (s *Storage) hasRepository(ctx context.Context, name string) (bool, error) {
	repos, err := s.backend.ListRepositories(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(repos, func(r provider.Repository) bool { return r.Name == name }), nil
}

// active returns the active repository or ErrRepositoryNotSet.
func (s *Storage) active(op, path string) (string, error) {
	if s.repo == "" {
		return "", opError(op, "", path, ErrRepositoryNotSet)
	}
	return s.repo, nil
}
