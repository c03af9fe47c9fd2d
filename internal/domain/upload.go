package domain

import "time"

// UploadCredential authorizes one direct upload to the object store.
type UploadCredential struct {
	Token      string    `json:"token"`
	StorageKey string    `json:"key"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Verdict is the outcome kind of an upload validation.
type Verdict string

const (
	Accepted     Verdict = "accepted"
	RejectedSize Verdict = "rejected_size"
	RejectedType Verdict = "rejected_type"
)

// ValidationResult carries the limit that caused a rejection.
type ValidationResult struct {
	Verdict    Verdict
	LimitBytes int64    // set for RejectedSize
	Allowed    []string // set for RejectedType
}

func (r ValidationResult) Accepted() bool { return r.Verdict == Accepted }

// OutcomeKind is the terminal state of a remote object deletion.
type OutcomeKind string

const (
	OutcomeDeleted               OutcomeKind = "deleted"
	OutcomeRegionMismatchRetried OutcomeKind = "region_mismatch_retried"
	OutcomeFailed                OutcomeKind = "failed"
)

// DeletionOutcome is returned once per delete call and never stored.
type DeletionOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Region string      `json:"region,omitempty"` // region that finally accepted the delete
	Hint   string      `json:"hint,omitempty"`   // configuration-correction hint
	Reason string      `json:"reason,omitempty"` // Cause rendered for clients
	Cause  error       `json:"-"`
}

func (o DeletionOutcome) Succeeded() bool {
	return o.Kind == OutcomeDeleted || o.Kind == OutcomeRegionMismatchRetried
}

// DeletionStatus summarises metadata and remote outcomes of an image delete.
type DeletionStatus string

const (
	DeletionComplete DeletionStatus = "complete"
	DeletionPartial  DeletionStatus = "partial"
)

// DeletionReport reports both halves of an image delete.
type DeletionReport struct {
	ImageID         string          `json:"imageId"`
	Key             string          `json:"key"`
	MetadataRemoved bool            `json:"metadataRemoved"`
	Remote          DeletionOutcome `json:"remote"`
	Status          DeletionStatus  `json:"status"`
	Message         string          `json:"message,omitempty"`
}
