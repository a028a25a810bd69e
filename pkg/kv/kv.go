// Package kv defines the small keyed store the orchestrator persists into.
// The orchestrator owns only the "usage:" and "credential:" namespaces.
package kv

import "context"

// Namespaces owned by the orchestrator.
const (
	UsagePrefix      = "usage:"
	CredentialPrefix = "credential:"
)

// Store is a plain key/value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put creates or replaces a value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases resources.
	Close() error
}

// UsageKey returns the usage record key for a provider.
func UsageKey(providerID string) string { return UsagePrefix + providerID }

// CredentialKey returns the credential key for a provider.
func CredentialKey(providerID string) string { return CredentialPrefix + providerID }
