package models

import "time"

// Op is a sync change operation kind.
type Op string

// OpUpsert is the only operation clients can submit today.
const OpUpsert Op = "upsert"

// IsValid reports whether the op is recognised.
func (o Op) IsValid() bool {
	return o == OpUpsert
}

// SyncChange is a client-submitted mutation envelope. It only exists for the
// duration of a bulk upsert.
type SyncChange struct {
	ID        string         `json:"id"`
	Op        Op             `json:"op"`
	Payload   map[string]any `json:"payload"`
	UpdatedAt time.Time      `json:"updatedAt"`
	// Malformed marks a change whose wire form could not be decoded. It is
	// reported as bad_change without touching the store.
	Malformed bool `json:"-"`
}

// FailureReason explains why a change was not applied.
type FailureReason string

const (
	ReasonBadChange FailureReason = "bad_change"
	ReasonException FailureReason = "exception"
)

// FailedChange reports one change that could not be applied.
type FailedChange struct {
	ID     string        `json:"id"`
	Reason FailureReason `json:"reason"`
}
