// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so the CLI and library validate
// manifests regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// SyncManifestSchema is the embedded sync-manifest JSON schema.
//
//go:embed sync-manifest.schema.json
var SyncManifestSchema []byte
