package models

import "strings"

// Source tags where a result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceFallback Source = "local-fallback"

	providerSourcePrefix = "provider:"
)

// ProviderSource returns the source tag for a provider id.
func ProviderSource(id string) Source {
	return Source(providerSourcePrefix + id)
}

// IsProvider reports whether s names a provider.
func (s Source) IsProvider() bool {
	return strings.HasPrefix(string(s), providerSourcePrefix)
}

// ProviderID returns the provider id of a provider source, or "".
func (s Source) ProviderID() string {
	if !s.IsProvider() {
		return ""
	}
	return strings.TrimPrefix(string(s), providerSourcePrefix)
}

// ErrorCode classifies orchestration failures.
type ErrorCode string

const (
	// ErrInvalidInput is the only code that reaches callers as a failure.
	ErrInvalidInput ErrorCode = "invalid_input"

	ErrProviderUnavailable ErrorCode = "provider_unavailable"
	ErrProviderTransport   ErrorCode = "provider_transport_error"
	ErrProviderShape       ErrorCode = "provider_shape_error"
)

// Result is returned by every orchestration call.
type Result struct {
	Success   bool      `json:"success"`
	Data      Output    `json:"data,omitempty"`
	Error     ErrorCode `json:"error,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Source    Source    `json:"source,omitempty"`
	LatencyMs int64     `json:"latencyMs"`
	Attempts  []Attempt `json:"attempts,omitempty"`
}
