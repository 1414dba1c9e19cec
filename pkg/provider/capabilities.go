package provider

import "context"

// Optional backend capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Backend interface remains intentionally small.

// ObjectCopier performs a provider-native, server-side copy.
//
// Backends without it are copied through GetObject + PutObject, which costs a
// download/upload round trip.
type ObjectCopier interface {
	CopyObject(ctx context.Context, src, dst ObjectRef, opts CopyOptions) error
}
