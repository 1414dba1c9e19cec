// Package azure implements the provider backend for Azure Blob Storage.
//
// Repositories map to blob containers. Authentication uses a storage account
// connection string; an AccountKey in the string is required for SignURL.
package azure

import (
	"strings"
	"time"
)

// Config configures an Azure Blob backend.
type Config struct {
	// ConnectionString is the storage account connection string, e.g.
	// "DefaultEndpointsProtocol=https;AccountName=...;AccountKey=...;EndpointSuffix=core.windows.net".
	// Azurite connection strings with BlobEndpoint are accepted.
	ConnectionString string

	// CopyPollInterval is how often an asynchronous server-side copy is
	// polled for completion. Zero uses DefaultCopyPollInterval.
	CopyPollInterval time.Duration
}

// DefaultCopyPollInterval is the default poll interval for pending copies.
const DefaultCopyPollInterval = 500 * time.Millisecond

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	cs := strings.TrimSpace(c.ConnectionString)
	if cs == "" {
		return &ConfigError{Field: "ConnectionString", Message: "is required"}
	}
	if !strings.Contains(cs, "=") {
		return &ConfigError{Field: "ConnectionString", Message: "must be a semicolon-separated list of key=value pairs"}
	}
	if c.CopyPollInterval < 0 {
		return &ConfigError{Field: "CopyPollInterval", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "azure config: " + e.Field + ": " + e.Message
}
