package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidManifest wraps semantic failures found after schema validation.
var ErrInvalidManifest = errors.New("invalid manifest")

// Load reads a manifest file, validates it and applies defaults.
//
// .yaml/.yml files are read as YAML and .json as JSON; other extensions try
// YAML first, then JSON.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("manifest file not found: %s", path)
		case os.IsPermission(err):
			return nil, fmt.Errorf("permission denied reading manifest: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads a manifest from r. path is used for format detection
// and may be empty.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a manifest.
//
// The raw document is validated against the schema before decoding into the
// struct, so unknown fields are rejected rather than silently dropped.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := CheckSchema(jsonData); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	m.ApplyDefaults()
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

// toJSON converts the document to JSON for schema validation and decoding.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid(data) {
			var raw any
			err := json.Unmarshal(data, &raw)
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil
	case ".yaml", ".yml":
		return yamlToJSON(data)
	}

	// YAML is a superset of JSON.
	jsonData, err := yamlToJSON(data)
	if err == nil {
		return jsonData, nil
	}
	if json.Valid(data) {
		return data, nil
	}
	return nil, fmt.Errorf("failed to parse manifest (tried YAML and JSON): %w", err)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest to JSON: %w", err)
	}
	return jsonData, nil
}
