package auth

import (
	"fmt"
	"strings"

	"github.com/3leaps/storagekit/pkg/provider"
)

// Credentials is the per-provider credential set held by a Gate.
type Credentials interface {
	// Provider identifies the provider the credentials are for.
	Provider() provider.ProviderType

	// Validate checks that every required field is set.
	Validate() error
}

// FieldError reports a missing or malformed credential field.
type FieldError struct {
	Provider provider.ProviderType
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s credentials: %s %s", e.Provider, e.Field, e.Message)
}

// Is matches ErrCredentialsInvalid.
func (e *FieldError) Is(target error) bool {
	return target == ErrCredentialsInvalid || target == provider.ErrInvalidCredentials
}

func required(p provider.ProviderType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Provider: p, Field: field, Message: "is required"}
	}
	return nil
}

// S3Credentials authenticate against S3 or an S3-compatible store.
type S3Credentials struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`

	// Endpoint selects an S3-compatible store (MinIO, Wasabi, moto).
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Provider returns provider.ProviderS3.
func (c S3Credentials) Provider() provider.ProviderType { return provider.ProviderS3 }

// Validate requires the access key pair and region.
func (c S3Credentials) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"access_key_id", c.AccessKeyID},
		{"secret_access_key", c.SecretAccessKey},
		{"region", c.Region},
	} {
		if err := required(provider.ProviderS3, f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// String masks the secret.
func (c S3Credentials) String() string {
	return fmt.Sprintf("s3{access_key_id=%s region=%s endpoint=%s}", Mask(c.AccessKeyID), c.Region, c.Endpoint)
}

// AzureCredentials authenticate against Azure Blob Storage.
type AzureCredentials struct {
	ConnectionString string `mapstructure:"connection_string"`
}

// Provider returns provider.ProviderAzure.
func (c AzureCredentials) Provider() provider.ProviderType { return provider.ProviderAzure }

// Validate requires a key=value connection string.
func (c AzureCredentials) Validate() error {
	if err := required(provider.ProviderAzure, "connection_string", c.ConnectionString); err != nil {
		return err
	}
	if !strings.Contains(c.ConnectionString, "=") {
		return &FieldError{Provider: provider.ProviderAzure, Field: "connection_string", Message: "must be a list of key=value pairs"}
	}
	return nil
}

// String hides the connection string.
func (c AzureCredentials) String() string {
	return "azure{connection_string=****}"
}

// GCSCredentials hold the service-account key fields for Google Cloud
// Storage.
type GCSCredentials struct {
	ProjectID    string `mapstructure:"project_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientEmail  string `mapstructure:"client_email"`
	PrivateKey   string `mapstructure:"private_key"`
	PrivateKeyID string `mapstructure:"private_key_id"`

	// Endpoint targets an emulator. With an endpoint only ProjectID is
	// required.
	Endpoint string `mapstructure:"endpoint"`
}

// Provider returns provider.ProviderGCS.
func (c GCSCredentials) Provider() provider.ProviderType { return provider.ProviderGCS }

// Validate requires every service-account field unless Endpoint is set.
func (c GCSCredentials) Validate() error {
	if err := required(provider.ProviderGCS, "project_id", c.ProjectID); err != nil {
		return err
	}
	if c.Endpoint != "" {
		return nil
	}
	for _, f := range []struct{ name, value string }{
		{"client_id", c.ClientID},
		{"client_email", c.ClientEmail},
		{"private_key", c.PrivateKey},
		{"private_key_id", c.PrivateKeyID},
	} {
		if err := required(provider.ProviderGCS, f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// String masks the key material.
func (c GCSCredentials) String() string {
	return fmt.Sprintf("gcs{project_id=%s client_email=%s private_key_id=%s}", c.ProjectID, c.ClientEmail, Mask(c.PrivateKeyID))
}

// FileCredentials point at the local directory holding repositories.
type FileCredentials struct {
	BaseDir string `mapstructure:"base_dir"`
}

// Provider returns provider.ProviderFile.
func (c FileCredentials) Provider() provider.ProviderType { return provider.ProviderFile }

// Validate requires BaseDir.
func (c FileCredentials) Validate() error {
	return required(provider.ProviderFile, "base_dir", c.BaseDir)
}

// Mask hides all but the last 4 characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
