// Package factory maps provider tags to authentication gates and storage
// sessions. It is the entry point callers use to obtain a Storage.
package factory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/storagekit/pkg/auth"
	"github.com/3leaps/storagekit/pkg/provider"
	"github.com/3leaps/storagekit/pkg/provider/azure"
	"github.com/3leaps/storagekit/pkg/provider/file"
	"github.com/3leaps/storagekit/pkg/provider/gcs"
	"github.com/3leaps/storagekit/pkg/provider/s3"
	"github.com/3leaps/storagekit/pkg/storage"
)

// connectors is the provider type -> connector table.
var connectors = map[provider.ProviderType]auth.Connector{
	provider.ProviderS3:    connectS3,
	provider.ProviderAzure: connectAzure,
	provider.ProviderGCS:   connectGCS,
	provider.ProviderFile:  connectFile,
}

// ParseProvider resolves a provider tag: "S3", "Azure", "GCS" (alias
// "GCP") or "File", case-insensitive. Unknown tags fail with
// provider.ErrUnsupportedProvider.
func ParseProvider(tag string) (provider.ProviderType, error) {
	p, err := provider.ParseProviderType(strings.TrimSpace(tag))
	if err != nil {
		return "", err
	}
	if _, ok := connectors[p]; !ok {
		return "", fmt.Errorf("%w: %q", provider.ErrUnsupportedProvider, tag)
	}
	return p, nil
}

// NewAuth returns an Uninitialized gate for the provider named by tag.
func NewAuth(tag string, opts ...auth.Option) (*auth.Gate, error) {
	p, err := ParseProvider(tag)
	if err != nil {
		return nil, err
	}
	return auth.NewGate(p, connectors[p], opts...), nil
}

// NewStorage returns a Storage over the gate's verified backend. tag must
// name the gate's provider.
func NewStorage(tag string, gate *auth.Gate, opts ...storage.Option) (*storage.Storage, error) {
	p, err := ParseProvider(tag)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		return nil, fmt.Errorf("factory: %w: no gate", auth.ErrNotVerified)
	}
	if gate.Provider() != p {
		return nil, fmt.Errorf("factory: %s gate cannot build a %s storage", gate.Provider(), p)
	}
	backend, err := gate.Backend()
	if err != nil {
		return nil, err
	}
	return storage.New(backend, opts...)
}

// Connect runs the whole sequence for callers holding credentials: gate,
// set, verify, storage.
func Connect(ctx context.Context, creds auth.Credentials, logger *zap.Logger, opts ...storage.Option) (*storage.Storage, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: no credentials", auth.ErrCredentialsInvalid)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tag := creds.Provider().String()

	gate, err := NewAuth(tag, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := gate.SetCredentials(creds); err != nil {
		return nil, err
	}
	if err := gate.TestCredentials(ctx); err != nil {
		return nil, err
	}
	return NewStorage(tag, gate, append([]storage.Option{storage.WithLogger(logger)}, opts...)...)
}

func connectS3(ctx context.Context, creds auth.Credentials) (provider.Backend, error) {
	c, ok := credentialsAs[auth.S3Credentials](creds)
	if !ok {
		return nil, mismatch(provider.ProviderS3, creds)
	}
	return s3.New(ctx, s3.Config{
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		ForcePathStyle:  c.ForcePathStyle || c.Endpoint != "",
	})
}

func connectAzure(_ context.Context, creds auth.Credentials) (provider.Backend, error) {
	c, ok := credentialsAs[auth.AzureCredentials](creds)
	if !ok {
		return nil, mismatch(provider.ProviderAzure, creds)
	}
	return azure.New(azure.Config{ConnectionString: c.ConnectionString})
}

func connectGCS(ctx context.Context, creds auth.Credentials) (provider.Backend, error) {
	c, ok := credentialsAs[auth.GCSCredentials](creds)
	if !ok {
		return nil, mismatch(provider.ProviderGCS, creds)
	}
	return gcs.New(ctx, gcs.Config{
		ProjectID:    c.ProjectID,
		ClientID:     c.ClientID,
		ClientEmail:  c.ClientEmail,
		PrivateKey:   c.PrivateKey,
		PrivateKeyID: c.PrivateKeyID,
		Endpoint:     c.Endpoint,
	})
}

func connectFile(_ context.Context, creds auth.Credentials) (provider.Backend, error) {
	c, ok := credentialsAs[auth.FileCredentials](creds)
	if !ok {
		return nil, mismatch(provider.ProviderFile, creds)
	}
	return file.New(file.Config{BaseDir: c.BaseDir})
}

// credentialsAs accepts credentials by value or by pointer.
func credentialsAs[T auth.Credentials](creds auth.Credentials) (T, bool) {
	var zero T
	switch c := creds.(type) {
	case T:
		return c, true
	case *T:
		if c != nil {
			return *c, true
		}
	}
	return zero, false
}

func mismatch(want provider.ProviderType, creds auth.Credentials) error {
	return fmt.Errorf("%w: %s connector given %T", auth.ErrCredentialsInvalid, want, creds)
}
