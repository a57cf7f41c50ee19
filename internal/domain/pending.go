package domain

import (
	"encoding/json"
	"time"
)

type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// PendingOperation is one deferred mutation waiting for remote confirmation.
// Entries are append-only: once queued they are removed after a confirmed
// remote apply, never edited in place.
type PendingOperation struct {
	ID         string        `json:"id"`
	Kind       OperationKind `json:"kind"`
	Collection string        `json:"collection"`

	// TargetID is the record the operation applies to. For a create this is
	// the temp id the record was saved under locally.
	TargetID string `json:"target_id"`

	// Payload holds the full record for a create and the partial field map
	// for an update. Empty for a delete.
	Payload json.RawMessage `json:"payload,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SyncStatus is a point-in-time snapshot, computed on demand and never stored.
type SyncStatus struct {
	PendingChanges int  `json:"pending_changes"`
	IsOnline       bool `json:"is_online"`
}
