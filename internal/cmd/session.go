package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/storagekit/internal/config"
	"github.com/3leaps/storagekit/internal/metrics"
	"github.com/3leaps/storagekit/internal/observability"
	"github.com/3leaps/storagekit/pkg/codec"
	"github.com/3leaps/storagekit/pkg/factory"
	"github.com/3leaps/storagekit/pkg/output"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/storage"
	"github.com/3leaps/storagekit/pkg/transfer"
)

// session is a verified connection plus the per-invocation output and
// metrics.
type session struct {
	cfg     *config.Config
	store   *storage.Storage
	metrics *metrics.Recorder
	out     *output.JSONLWriter
	jobID   string
	logger  *zap.Logger
}

type sessionOptions struct {
	// provider overrides the configured provider tag.
	provider string

	// noRepository skips selecting the configured repository.
	noRepository bool

	// engine overrides the engine configuration derived from config.
	engine *transfer.Config
}

// openSession connects using the loaded configuration.
func openSession(ctx context.Context, stdout io.Writer, so sessionOptions) (*session, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, exitError(exitInvalidArgument, "Configuration not loaded", config.ErrNotLoaded)
	}
	logger := observability.CLILogger

	tag := cfg.Provider
	if so.provider != "" {
		tag = so.provider
	}
	creds, err := cfg.CredentialsFor(tag)
	if err != nil {
		return nil, exitError(exitInvalidArgument, "No usable provider", err)
	}

	opts, err := storageOptions(cfg, so.engine, logger)
	if err != nil {
		return nil, exitError(exitInvalidArgument, "Invalid configuration", err)
	}
	rec := metrics.New(creds.Provider().String())
	opts = append(opts, storage.WithObserver(rec))

	logger.Debug("Connecting", zap.String("provider", creds.Provider().String()), zap.String("credentials", fmt.Sprint(creds)))
	store, err := factory.Connect(ctx, creds, logger, opts...)
	if err != nil {
		return nil, fail("Failed to connect to storage provider", err)
	}

	s := &session{
		cfg:     cfg,
		store:   store,
		metrics: rec,
		jobID:   uuid.New().String(),
		logger:  logger,
	}
	s.out = output.NewJSONLWriter(stdout, s.jobID, store.Provider().String())

	if cfg.Repository != "" && !so.noRepository {
		if err := store.SetRepository(ctx, cfg.Repository); err != nil {
			s.close()
			return nil, fail("Failed to select repository", err)
		}
	}
	return s, nil
}

func storageOptions(cfg *config.Config, engine *transfer.Config, logger *zap.Logger) ([]storage.Option, error) {
	delim, err := cfg.Delimiter()
	if err != nil {
		return nil, err
	}
	ec := transfer.Config{
		PathMode:  transfer.PathMode(cfg.Sync.PathMode),
		RateLimit: cfg.Sync.RateLimit,
		Logger:    logger,
	}
	if engine != nil {
		ec = *engine
	}
	return []storage.Option{
		storage.WithLogger(logger),
		storage.WithCodec(codec.New(codec.WithDelimiter(delim), codec.WithInferTypes(cfg.CSV.InferTypes))),
		storage.WithEngineConfig(ec),
		storage.WithURLTTL(cfg.URLTTL),
	}, nil
}

func (s *session) provider() provider.ProviderType {
	return s.store.Provider()
}

// ref resolves a command-line reference against the connection.
func (s *session) ref(arg string) (ObjectRef, error) {
	r, err := ParseRef(arg)
	if err != nil {
		return r, exitError(exitInvalidArgument, "Invalid object reference", err)
	}
	r, err = r.resolve(s.provider(), s.store.Repository())
	if err != nil {
		return r, exitError(exitInvalidArgument, "Invalid object reference", err)
	}
	return r, nil
}

// withRepository runs fn with the reference's repository active, restoring
// the previous selection afterwards.
func (s *session) withRepository(ctx context.Context, r ObjectRef, fn func() error) error {
	prev := s.store.Repository()
	if r.Repository == "" || r.Repository == prev {
		return fn()
	}
	if err := s.store.SetRepository(ctx, r.Repository); err != nil {
		return fail("Failed to select repository", err)
	}
	defer func() {
		if prev != "" {
			_ = s.store.SetRepository(context.WithoutCancel(ctx), prev)
		}
	}()
	return fn()
}

// close releases the connection and writes the metrics textfile.
func (s *session) close() {
	_ = s.out.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close storage", zap.Error(err))
	}
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
}
