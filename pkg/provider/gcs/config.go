// Package gcs implements the provider backend for Google Cloud Storage.
//
// Repositories map to buckets within one project. Authentication uses the
// fields of a service-account key; the same key signs URLs.
package gcs

import (
	"encoding/json"
	"strings"
)

// DefaultTokenURI is the OAuth token endpoint written into generated
// service-account credentials.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// Config configures a GCS backend.
type Config struct {
	// ProjectID owns the buckets listed and created by the backend.
	ProjectID string

	// Service-account key fields.
	ClientID     string
	ClientEmail  string
	PrivateKey   string
	PrivateKeyID string

	// Endpoint overrides the JSON API endpoint, for emulators such as
	// fake-gcs-server. When set without a PrivateKey, requests are sent
	// unauthenticated.
	Endpoint string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return &ConfigError{Field: "ProjectID", Message: "is required"}
	}
	if c.Endpoint != "" && c.PrivateKey == "" {
		return nil
	}
	if strings.TrimSpace(c.ClientEmail) == "" {
		return &ConfigError{Field: "ClientEmail", Message: "is required"}
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		return &ConfigError{Field: "PrivateKey", Message: "is required"}
	}
	if !strings.Contains(c.PrivateKey, "PRIVATE KEY") {
		return &ConfigError{Field: "PrivateKey", Message: "must be a PEM-encoded key"}
	}
	return nil
}

// Anonymous reports whether the backend talks to an emulator without
// credentials.
func (c *Config) Anonymous() bool {
	return c.Endpoint != "" && c.PrivateKey == ""
}

// serviceAccount mirrors the JSON key file format understood by the Google
// auth libraries.
type serviceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ServiceAccountJSON renders the configuration as a service-account key file.
func (c *Config) ServiceAccountJSON() ([]byte, error) {
	return json.Marshal(serviceAccount{
		Type:         "service_account",
		ProjectID:    c.ProjectID,
		PrivateKeyID: c.PrivateKeyID,
		PrivateKey:   normalizeKey(c.PrivateKey),
		ClientEmail:  c.ClientEmail,
		ClientID:     c.ClientID,
		TokenURI:     DefaultTokenURI,
	})
}

// normalizeKey expands literal "\n" sequences, which is how PEM keys usually
// arrive through environment variables.
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "gcs config: " + e.Field + ": " + e.Message
}
