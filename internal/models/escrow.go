package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow hold status enums.
const (
	HoldStatusHeld     = "HELD"
	HoldStatusReleased = "RELEASED"
	HoldStatusRefunded = "REFUNDED"
)

// EscrowHold records the sats held against a job. At most one per job.
type EscrowHold struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dispute status and resolution enums.
const (
	DisputeStatusOpen     = "OPEN"
	DisputeStatusResolved = "RESOLVED"

	ResolutionRefund    = "REFUND"
	ResolutionPayWorker = "PAY_WORKER"
	ResolutionSplit     = "SPLIT"
)

type Dispute struct {
	ID         uuid.UUID  `json:"id"`
	JobID      uuid.UUID  `json:"job_id"`
	OpenedBy   uuid.UUID  `json:"opened_by"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	Resolution *string    `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValidResolution reports whether r is a known dispute resolution.
func ValidResolution(r string) bool {
	return r == ResolutionRefund || r == ResolutionPayWorker || r == ResolutionSplit
}
