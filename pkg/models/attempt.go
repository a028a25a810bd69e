package models

import "time"

// AttemptOutcome is the result of considering one provider.
type AttemptOutcome string

const (
	OutcomeServed  AttemptOutcome = "served"
	OutcomeSkipped AttemptOutcome = "skipped"
	OutcomeFailed  AttemptOutcome = "failed"
)

// Attempt records what happened with one provider during a request.
type Attempt struct {
	ProviderID string         `json:"providerId"`
	Outcome    AttemptOutcome `json:"outcome"`
	Error      ErrorCode      `json:"error,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Latency    time.Duration  `json:"latency"`
}
