package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bidhall-marketplace-service/internal/domain/job"
)

// JobScheduler defines the interface for scheduling one-shot deferred work.
// Jobs survive restarts; the persisted row is the source of truth.
type JobScheduler interface {
	// CreateJob persists a job and arms its timer. At most one in-flight
	// job of a given type may exist per reference
	CreateJob(ctx context.Context, jobType, entity string, referenceID uuid.UUID, runAt time.Time, cfg *job.Config) (*job.Job, error)

	// RescheduleJob moves the in-flight job of a type for a reference to a
	// new run time and re-arms its timer
	RescheduleJob(ctx context.Context, jobType string, referenceID uuid.UUID, runAt time.Time) error

	// CancelJob cancels a single job and disarms its timer
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// CancelJobsForReference cancels every in-flight job tied to a reference
	CancelJobsForReference(ctx context.Context, referenceID uuid.UUID) error
}
