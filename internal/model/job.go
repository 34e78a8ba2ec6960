package model

import (
	"time"
)

// JobStatus is the lifecycle state of a remote assistant run.
type JobStatus string

const (
	JobStatusCreated                JobStatus = "created"
	JobStatusQueued                 JobStatus = "queued"
	JobStatusRunning                JobStatus = "running"
	JobStatusCompleted              JobStatus = "completed"
	JobStatusFailed                 JobStatus = "failed"
	JobStatusCancelled              JobStatus = "cancelled"
	JobStatusExpired                JobStatus = "expired"
	JobStatusRequiresExternalAction JobStatus = "requires_external_action"
)

// Terminal reports whether no further polling should happen in this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
		JobStatusExpired, JobStatusRequiresExternalAction:
		return true
	}
	return false
}

// RemoteJob tracks one create-submit-poll cycle against the assistant backend.
type RemoteJob struct {
	JobID              string    `json:"job_id"`
	ConversationHandle string    `json:"conversation_handle"`
	Status             JobStatus `json:"status"`
	StartedAt          time.Time `json:"started_at"`
}

// NewRemoteJob creates a job in the Created state.
func NewRemoteJob(handle string, startedAt time.Time) *RemoteJob {
	return &RemoteJob{
		ConversationHandle: handle,
		Status:             JobStatusCreated,
		StartedAt:          startedAt,
	}
}

// Observe records a polled status. Updates after a terminal status are ignored.
func (j *RemoteJob) Observe(status JobStatus) {
	if j.Status.Terminal() {
		return
	}
	j.Status = status
}

// Elapsed returns the time since the job was started.
func (j *RemoteJob) Elapsed() time.Duration {
	return time.Since(j.StartedAt)
}
