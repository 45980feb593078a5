package job

import (
	"time"

	"github.com/google/uuid"
)

// Status of a scheduled one-shot job
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusRetryQueued Status = "retry_queued"

	// StatusMaintenanceQueued marks a terminal job the sweep has selected
	// for deletion but not yet removed.
	StatusMaintenanceQueued Status = "maintenance_queued"
)

// Well-known job types handled by the auction lifecycle.
const (
	TypeStartAuction = "start-auction"
	TypeEndAuction   = "end-auction"
)

// EntityAuction is the entity discriminator for auction lifecycle jobs.
const EntityAuction = "auction"

// Retention and health policy for the maintenance sweep.
const (
	CompletedRetention = 7 * 24 * time.Hour
	FailedRetention    = 30 * 24 * time.Hour
	StuckThreshold     = 24 * time.Hour
)

// Terminal returns true once a job can never run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InFlight returns true while a job still counts against the
// one-in-flight-per-reference rule.
func (s Status) InFlight() bool {
	switch s {
	case StatusPending, StatusRunning, StatusRetryQueued:
		return true
	}
	return false
}

// Config controls retry and timeout behavior of a single job. It is stored
// alongside the job so a restart re-applies the same policy.
type Config struct {
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultConfig returns the policy applied when a job is created without one.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Timeout:    5 * time.Minute,
	}
}

// Job is a persisted one-shot unit of deferred work. The database row is
// the source of truth; in-process timers are rebuilt from it on boot.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Entity      string     `json:"entity"`
	ReferenceID uuid.UUID  `json:"reference_id"`
	RunAt       time.Time  `json:"run_at"`
	Status      Status     `json:"status"`
	Retries     int        `json:"retries"`
	Config      Config     `json:"config"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RetriesRemain reports whether a failed run may be queued again.
func (j *Job) RetriesRemain() bool {
	return j.Retries < j.Config.MaxRetries
}

// NextRetryDelay returns the backoff before the next attempt, doubling the
// base delay per retry already consumed.
func (j *Job) NextRetryDelay() time.Duration {
	delay := j.Config.RetryDelay
	for i := 0; i < j.Retries; i++ {
		delay *= 2
	}
	return delay
}
