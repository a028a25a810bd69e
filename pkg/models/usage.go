package models

import "time"

// DateLayout is the calendar-day format stored in usage records.
const DateLayout = "2006-01-02"

// UsageRecord is the persisted per-provider quota counter.
type UsageRecord struct {
	ProviderID    string    `json:"providerId"`
	Date          string    `json:"date"`
	DailyCount    int       `json:"dailyCount"`
	MonthlyCount  int       `json:"monthlyCount"`
	LastRequestAt time.Time `json:"lastRequestAt"`
}

// Remaining reports requests left in the current windows. -1 means unlimited.
type Remaining struct {
	Daily   int `json:"daily"`
	Monthly int `json:"monthly"`
}

// Exhausted reports whether either window has no requests left.
func (r Remaining) Exhausted() bool {
	return r.Daily == 0 || r.Monthly == 0
}

// Mode is the coarse availability state shown by status widgets.
type Mode string

const (
	ModeMock    Mode = "mock"
	ModeFree    Mode = "free"
	ModeCustom  Mode = "custom"
	ModeOffline Mode = "offline"
)

// EventType identifies a status change.
type EventType string

const (
	EventQuotaRecorded      EventType = "quota_recorded"
	EventCredentialStored   EventType = "credential_stored"
	EventCredentialsCleared EventType = "credentials_cleared"
)

// StatusEvent is delivered to subscribers after a state change.
type StatusEvent struct {
	Type       EventType `json:"type"`
	ProviderID string    `json:"providerId,omitempty"`
	Remaining  Remaining `json:"remaining"`
	Mode       Mode      `json:"mode"`
	At         time.Time `json:"at"`
}
