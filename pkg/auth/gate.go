// Package auth gates backend construction behind verified credentials.
//
// A Gate moves through three states: Uninitialized, CredentialsSet and
// Verified. Only a Verified gate hands out a Backend. Verification is one
// lightweight call (ListRepositories) and is never repeated automatically.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/storagekit/pkg/provider"
)

var (
	// ErrCredentialsInvalid indicates credentials that are incomplete or were
	// rejected when tested. It matches provider.ErrInvalidCredentials.
	ErrCredentialsInvalid = fmt.Errorf("credentials invalid: %w", provider.ErrInvalidCredentials)

	// ErrNotVerified indicates a Backend request before TestCredentials
	// succeeded.
	ErrNotVerified = errors.New("credentials not verified")
)

// State is the gate's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateCredentialsSet
	StateVerified
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCredentialsSet:
		return "credentials_set"
	case StateVerified:
		return "verified"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Connector builds a backend from credentials. It must not perform network
// calls beyond client construction; the Gate issues the verifying call.
type Connector func(ctx context.Context, creds Credentials) (provider.Backend, error)

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate holds the credentials for one provider and the backend built from
// them once verified. A Gate is not safe for concurrent use.
type Gate struct {
	provider provider.ProviderType
	connect  Connector
	logger   *zap.Logger

	state   State
	creds   Credentials
	backend provider.Backend
}

// NewGate returns an Uninitialized gate for p.
func NewGate(p provider.ProviderType, connect Connector, opts ...Option) *Gate {
	g := &Gate{provider: p, connect: connect}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Provider returns the provider the gate authenticates.
func (g *Gate) Provider() provider.ProviderType { return g.provider }

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Credentials returns the credentials set on the gate, or nil.
func (g *Gate) Credentials() Credentials { return g.creds }

// SetCredentials stores creds and moves the gate to CredentialsSet,
// discarding any verified backend. Credentials for another provider or with
// empty required fields are rejected and leave the gate unchanged.
func (g *Gate) SetCredentials(creds Credentials) error {
	if creds == nil {
		return fmt.Errorf("%w: no credentials", ErrCredentialsInvalid)
	}
	if creds.Provider() != g.provider {
		return fmt.Errorf("%w: %s credentials given to %s gate", ErrCredentialsInvalid, creds.Provider(), g.provider)
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	g.release()
	g.creds = creds
	g.state = StateCredentialsSet
	return nil
}

// TestCredentials connects and performs one ListRepositories call. On
// success the gate is Verified; on failure it stays in CredentialsSet and
// the error wraps both ErrCredentialsInvalid and the cause.
func (g *Gate) TestCredentials(ctx context.Context) error {
	if g.state == StateUninitialized {
		return fmt.Errorf("%w: no credentials set", ErrCredentialsInvalid)
	}
	if g.connect == nil {
		return fmt.Errorf("auth: no connector for %s", g.provider)
	}

	g.release()
	backend, err := g.connect(ctx, g.creds)
	if err != nil {
		g.state = StateCredentialsSet
		return fmt.Errorf("%w: connect %s: %w", ErrCredentialsInvalid, g.provider, err)
	}
	if _, err := backend.ListRepositories(ctx); err != nil {
		_ = backend.Close()
		g.state = StateCredentialsSet
		g.logger.Warn("Credential test failed",
			zap.String("provider", g.provider.String()),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCredentialsInvalid, err)
	}

	g.backend = backend
	g.state = StateVerified
	g.logger.Debug("Credentials verified", zap.String("provider", g.provider.String()))
	return nil
}

// Backend returns the verified backend. It fails with ErrNotVerified unless
// TestCredentials succeeded since the last SetCredentials.
func (g *Gate) Backend() (provider.Backend, error) {
	if g.state != StateVerified || g.backend == nil {
		return nil, fmt.Errorf("%w: %s gate is %s", ErrNotVerified, g.provider, g.state)
	}
	return g.backend, nil
}

// Close releases the verified backend, if any, and resets to
// CredentialsSet.
func (g *Gate) Close() error {
	var err error
	if g.backend != nil {
		err = g.backend.Close()
		g.backend = nil
	}
	if g.state == StateVerified {
		g.state = StateCredentialsSet
	}
	return err
}

func (g *Gate) release() {
	if g.backend != nil {
		_ = g.backend.Close()
		g.backend = nil
	}
}
