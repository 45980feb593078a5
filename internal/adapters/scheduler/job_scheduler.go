package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// Handler executes one job. A nil error marks the job completed; an error
// queues a retry while retries remain and fails the job afterwards.
type Handler func(ctx context.Context, j *job.Job) error

// JobScheduler arms an in-process timer per persisted job. The database
// row is the source of truth: timers are rebuilt from it on Start, so a
// restart never loses scheduled work.
type JobScheduler struct {
	jobRepo  outbound.JobRepository
	pool     *pond.WorkerPool
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	interval time.Duration

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	timersMu sync.Mutex
	timers   map[uuid.UUID]*time.Timer
}

type JobSchedulerParams struct {
	JobRepository outbound.JobRepository
	Logger        zerolog.Logger

	// Workers caps concurrent job executions
	Workers int

	// MaintenanceInterval controls how often the retention sweep runs
	MaintenanceInterval time.Duration
}

func NewJobScheduler(params JobSchedulerParams) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	workers := params.Workers
	if workers <= 0 {
		workers = 10
	}
	interval := params.MaintenanceInterval
	if interval <= 0 {
		interval = time.Hour
	}

	return &JobScheduler{
		jobRepo:  params.JobRepository,
		pool:     pond.New(workers, workers*10),
		logger:   params.Logger.With().Str("component", "job_scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		handlers: make(map[string]Handler),
		timers:   make(map[uuid.UUID]*time.Timer),
	}
}

// RegisterHandler binds a handler to a job type. Must be called before Start.
func (s *JobScheduler) RegisterHandler(jobType string, handler Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[jobType] = handler
}

// CreateJob persists a job and arms its timer. At most one in-flight job
// of a given type may exist per reference.
func (s *JobScheduler) CreateJob(ctx context.Context, jobType, entity string, referenceID uuid.UUID, runAt time.Time, cfg *job.Config) (*job.Job, error) {
	s.handlersMu.RLock()
	_, registered := s.handlers[jobType]
	s.handlersMu.RUnlock()
	if !registered {
		return nil, shared.ErrJobHandlerNotFound
	}
	if referenceID == uuid.Nil {
		return nil, shared.ErrJobMissingReference
	}
	if runAt.IsZero() {
		return nil, shared.ErrJobMissingRunAt
	}

	existing, err := s.jobRepo.GetInFlightByReference(ctx, jobType, referenceID)
	if err != nil && err != shared.ErrJobNotFound {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	if existing != nil {
		return nil, shared.ErrJobAlreadyScheduled
	}

	config := job.DefaultConfig()
	if cfg != nil {
		config = *cfg
	}

	now := time.Now()
	j := &job.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Entity:      entity,
		ReferenceID: referenceID,
		RunAt:       runAt,
		Status:      job.StatusPending,
		Config:      config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.jobRepo.Create(ctx, j); err != nil {
		// The storage-level uniqueness check catches a concurrent create
		// that slipped past the lookup above.
		if err == shared.ErrJobAlreadyScheduled {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.armTimer(j)

	s.logger.Info().
		Str("job_id", j.ID.String()).
		Str("job_type", jobType).
		Str("reference_id", referenceID.String()).
		Time("run_at", runAt).
		Msg("Job scheduled")

	return j, nil
}

// RescheduleJob moves the in-flight job of a type for a reference to a new
// run time and re-arms its timer. A job caught mid-execution is returned to
// pending; the running attempt notices the status change when it finishes
// and leaves the row to the new timer.
func (s *JobScheduler) RescheduleJob(ctx context.Context, jobType string, referenceID uuid.UUID, runAt time.Time) error {
	if runAt.IsZero() {
		return shared.ErrJobMissingRunAt
	}

	j, err := s.jobRepo.GetInFlightByReference(ctx, jobType, referenceID)
	if err != nil {
		return err
	}

	j.Status = job.StatusPending
	j.RunAt = runAt
	j.UpdatedAt = time.Now()
	if err := s.jobRepo.Update(ctx, j); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}

	s.armTimer(j)

	s.logger.Info().
		Str("job_id", j.ID.String()).
		Str("job_type", jobType).
		Str("reference_id", referenceID.String()).
		Time("run_at", runAt).
		Msg("Job rescheduled")

	return nil
}

// CancelJob cancels a single job and disarms its timer
func (s *JobScheduler) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	j, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if j.Status.Terminal() {
		return nil
	}

	s.disarmTimer(jobID)

	j.Status = job.StatusCancelled
	j.UpdatedAt = time.Now()
	if err := s.jobRepo.Update(ctx, j); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID.String()).
		Str("job_type", j.Type).
		Msg("Job cancelled")

	return nil
}

// CancelJobsForReference cancels every in-flight job tied to a reference
func (s *JobScheduler) CancelJobsForReference(ctx context.Context, referenceID uuid.UUID) error {
	jobs, err := s.jobRepo.ListInFlightByReference(ctx, referenceID)
	if err != nil {
		return fmt.Errorf("failed to list jobs for reference: %w", err)
	}

	for _, j := range jobs {
		if err := s.CancelJob(ctx, j.ID); err != nil {
			return err
		}
	}

	return nil
}

// Start reloads persisted in-flight jobs and begins the maintenance loop.
// Jobs whose run time already passed fire immediately.
func (s *JobScheduler) Start() error {
	s.logger.Info().Msg("Starting job scheduler")

	jobs, err := s.jobRepo.ListInFlight(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to reload jobs: %w", err)
	}

	for _, j := range jobs {
		s.armTimer(j)
	}

	s.logger.Info().Int("reloaded", len(jobs)).Msg("Rearmed persisted jobs")

	s.wg.Add(1)
	go s.maintenanceLoop()

	return nil
}

// Stop gracefully stops the scheduler. Pending timers are disarmed; their
// jobs stay pending in the database and rearm on the next Start.
func (s *JobScheduler) Stop() {
	s.logger.Info().Msg("Stopping job scheduler")

	s.cancel()

	s.timersMu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.timersMu.Unlock()

	s.pool.StopAndWait()
	s.wg.Wait()
}

func (s *JobScheduler) armTimer(j *job.Job) {
	delay := time.Until(j.RunAt)
	if delay < 0 {
		delay = 0
	}

	jobID := j.ID

	s.timersMu.Lock()
	if existing, ok := s.timers[jobID]; ok {
		existing.Stop()
	}
	s.timers[jobID] = time.AfterFunc(delay, func() {
		s.timersMu.Lock()
		delete(s.timers, jobID)
		s.timersMu.Unlock()

		s.pool.Submit(func() {
			s.execute(jobID)
		})
	})
	s.timersMu.Unlock()
}

func (s *JobScheduler) disarmTimer(jobID uuid.UUID) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, ok := s.timers[jobID]; ok {
		timer.Stop()
		delete(s.timers, jobID)
	}
}

// execute runs one job attempt. The fresh read guards against firing a
// timer for a job that was cancelled or completed in the meantime.
func (s *JobScheduler) execute(jobID uuid.UUID) {
	logger := s.logger.With().Str("job_id", jobID.String()).Logger()

	j, err := s.jobRepo.GetByID(s.ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load job for execution")
		return
	}

	if j.Status != job.StatusPending && j.Status != job.StatusRetryQueued {
		logger.Debug().Str("status", string(j.Status)).Msg("Skipping job not in a runnable state")
		return
	}

	s.handlersMu.RLock()
	handler, ok := s.handlers[j.Type]
	s.handlersMu.RUnlock()
	if !ok {
		logger.Error().Str("job_type", j.Type).Msg("No handler registered for job type")
		s.finishJob(j, job.StatusFailed, shared.ErrJobHandlerNotFound.Error())
		return
	}

	now := time.Now()
	j.Status = job.StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	if err := s.jobRepo.Update(s.ctx, j); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job running")
		return
	}

	logger.Info().Str("job_type", j.Type).Int("attempt", j.Retries+1).Msg("Executing job")

	runErr := s.runHandler(handler, j)

	// Reload before writing the outcome. A cancel or reschedule that
	// landed while the handler ran owns the row now; writing the stale
	// in-memory copy back would resurrect it.
	current, err := s.jobRepo.GetByID(s.ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload job after execution")
		return
	}
	if current.Status != job.StatusRunning {
		logger.Info().
			Str("job_type", current.Type).
			Str("status", string(current.Status)).
			Msg("Job status changed during execution, discarding result")
		return
	}

	if runErr == nil {
		s.finishJob(current, job.StatusCompleted, "")
		logger.Info().Str("job_type", current.Type).Msg("Job completed")
		return
	}

	logger.Error().Err(runErr).Str("job_type", current.Type).Msg("Job attempt failed")

	if !current.RetriesRemain() {
		s.finishJob(current, job.StatusFailed, runErr.Error())
		logger.Error().Str("job_type", current.Type).Int("retries", current.Retries).Msg("Job failed permanently")
		return
	}

	delay := current.NextRetryDelay()
	current.Retries++
	current.Status = job.StatusRetryQueued
	current.RunAt = time.Now().Add(delay)
	current.LastError = runErr.Error()
	current.UpdatedAt = time.Now()
	if err := s.jobRepo.Update(s.ctx, current); err != nil {
		logger.Error().Err(err).Msg("Failed to queue job retry")
		return
	}

	s.armTimer(current)

	logger.Warn().
		Str("job_type", current.Type).
		Int("retry", current.Retries).
		Dur("delay", delay).
		Msg("Job retry queued")
}

// runHandler applies the job's timeout and converts panics into errors so
// one bad handler cannot take the worker down.
func (s *JobScheduler) runHandler(handler Handler, j *job.Job) (err error) {
	ctx := s.ctx
	if j.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Config.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()

	return handler(ctx, j)
}

func (s *JobScheduler) finishJob(j *job.Job, status job.Status, lastError string) {
	now := time.Now()
	j.Status = status
	j.LastError = lastError
	j.CompletedAt = &now
	j.UpdatedAt = now

	if err := s.jobRepo.Update(s.ctx, j); err != nil {
		s.logger.Error().Err(err).Str("job_id", j.ID.String()).Msg("Failed to persist job result")
	}
}

// maintenanceLoop periodically sweeps old terminal jobs and force-fails
// jobs stuck in running, which can happen after a hard crash mid-execution.
func (s *JobScheduler) maintenanceLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runMaintenance()
		case <-s.ctx.Done():
			s.logger.Info().Msg("Maintenance loop stopped")
			return
		}
	}
}

func (s *JobScheduler) runMaintenance() {
	now := time.Now()

	deleted, err := s.jobRepo.DeleteTerminalBefore(s.ctx,
		[]job.Status{job.StatusCompleted}, now.Add(-job.CompletedRetention))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sweep completed jobs")
	}

	expired, err := s.jobRepo.DeleteTerminalBefore(s.ctx,
		[]job.Status{job.StatusFailed, job.StatusCancelled}, now.Add(-job.FailedRetention))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sweep failed jobs")
	}

	stuck, err := s.jobRepo.FailStuckRunning(s.ctx, now.Add(-job.StuckThreshold))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fail stuck jobs")
	}

	if deleted > 0 || expired > 0 || stuck > 0 {
		s.logger.Info().
			Int64("completed_deleted", deleted).
			Int64("failed_deleted", expired).
			Int64("stuck_failed", stuck).
			Msg("Job maintenance sweep finished")
	}
}
