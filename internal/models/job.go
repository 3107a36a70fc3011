package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums.
const (
	JobStatusOpen       = "OPEN"
	JobStatusFunded     = "FUNDED"
	JobStatusInProgress = "IN_PROGRESS"
	JobStatusReview     = "REVIEW"
	JobStatusCompleted  = "COMPLETED"
	JobStatusDisputed   = "DISPUTED"
	JobStatusCancelled  = "CANCELLED"
)

type Job struct {
	ID          uuid.UUID  `json:"id"`
	CreatorID   uuid.UUID  `json:"creator_id"`
	WorkerID    *uuid.UUID `json:"worker_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	BudgetSats  int64      `json:"budget_sats"`
	Status      string     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsParty reports whether userID is the creator or the assigned worker.
func (j *Job) IsParty(userID uuid.UUID) bool {
	if j.CreatorID == userID {
		return true
	}
	return j.WorkerID != nil && *j.WorkerID == userID
}

// HasWorker reports whether a worker has been assigned.
func (j *Job) HasWorker() bool {
	return j.WorkerID != nil && *j.WorkerID != uuid.Nil
}

var jobTransitions = map[string][]string{
	JobStatusOpen:       {JobStatusFunded, JobStatusCancelled},
	JobStatusFunded:     {JobStatusInProgress},
	JobStatusInProgress: {JobStatusReview, JobStatusCompleted, JobStatusDisputed},
	JobStatusReview:     {JobStatusCompleted, JobStatusDisputed},
	JobStatusDisputed:   {JobStatusCompleted},
}

// CanTransition reports whether a job may move from one status to another.
// COMPLETED and CANCELLED are terminal.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidJobStatus reports whether s is a known job status.
func ValidJobStatus(s string) bool {
	switch s {
	case JobStatusOpen, JobStatusFunded, JobStatusInProgress, JobStatusReview,
		JobStatusCompleted, JobStatusDisputed, JobStatusCancelled:
		return true
	}
	return false
}
