package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/shared"
)

// fakeJobRepository keeps jobs in memory behind a mutex
type fakeJobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newFakeJobRepository() *fakeJobRepository {
	return &fakeJobRepository{jobs: make(map[uuid.UUID]*job.Job)}
}

// Create enforces in-flight uniqueness per (type, reference) under the
// lock, like the partial unique index in postgres.
func (f *fakeJobRepository) Create(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.jobs {
		if existing.Type == j.Type && existing.ReferenceID == j.ReferenceID && existing.Status.InFlight() {
			return shared.ErrJobAlreadyScheduled
		}
	}
	copied := *j
	f.jobs[j.ID] = &copied
	return nil
}

func (f *fakeJobRepository) GetByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, shared.ErrJobNotFound
	}
	copied := *j
	return &copied, nil
}

func (f *fakeJobRepository) Update(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[j.ID]; !ok {
		return shared.ErrJobNotFound
	}
	copied := *j
	f.jobs[j.ID] = &copied
	return nil
}

func (f *fakeJobRepository) ListInFlight(_ context.Context) ([]*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*job.Job
	for _, j := range f.jobs {
		if j.Status == job.StatusPending || j.Status == job.StatusRetryQueued {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeJobRepository) GetInFlightByReference(_ context.Context, jobType string, referenceID uuid.UUID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Type == jobType && j.ReferenceID == referenceID && j.Status.InFlight() {
			copied := *j
			return &copied, nil
		}
	}
	return nil, shared.ErrJobNotFound
}

func (f *fakeJobRepository) ListInFlightByReference(_ context.Context, referenceID uuid.UUID) ([]*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*job.Job
	for _, j := range f.jobs {
		if j.ReferenceID == referenceID && j.Status.InFlight() {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeJobRepository) DeleteTerminalBefore(_ context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, j := range f.jobs {
		for _, s := range statuses {
			if j.Status == s && j.UpdatedAt.Before(cutoff) {
				delete(f.jobs, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeJobRepository) FailStuckRunning(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.jobs {
		if j.Status == job.StatusRunning && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			j.Status = job.StatusFailed
			j.LastError = "stuck in running state"
			n++
		}
	}
	return n, nil
}

func (f *fakeJobRepository) statusOf(t *testing.T, id uuid.UUID) job.Status {
	t.Helper()
	j, err := f.GetByID(context.Background(), id)
	require.NoError(t, err)
	return j.Status
}

func newTestScheduler(repo *fakeJobRepository) *JobScheduler {
	return NewJobScheduler(JobSchedulerParams{
		JobRepository:       repo,
		Logger:              zerolog.Nop(),
		Workers:             4,
		MaintenanceInterval: time.Hour,
	})
}

func waitForStatus(t *testing.T, repo *fakeJobRepository, id uuid.UUID, want job.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if repo.statusOf(t, id) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s (last: %s)", id, want, repo.statusOf(t, id))
}

func TestCreateJobRunsHandler(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	done := make(chan uuid.UUID, 1)
	s.RegisterHandler("test-job", func(_ context.Context, j *job.Job) error {
		done <- j.ReferenceID
		return nil
	})

	refID := uuid.New()
	j, err := s.CreateJob(context.Background(), "test-job", "test", refID, time.Now().Add(50*time.Millisecond), nil)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status)

	select {
	case got := <-done:
		assert.Equal(t, refID, got)
	case <-time.After(3 * time.Second):
		t.Fatal("handler never ran")
	}

	waitForStatus(t, repo, j.ID, job.StatusCompleted)
}

func TestCreateJobRejectsUnknownType(t *testing.T) {
	s := newTestScheduler(newFakeJobRepository())
	defer s.Stop()

	_, err := s.CreateJob(context.Background(), "unregistered", "test", uuid.New(), time.Now(), nil)
	require.ErrorIs(t, err, shared.ErrJobHandlerNotFound)
}

func TestCreateJobRejectsDuplicateReference(t *testing.T) {
	s := newTestScheduler(newFakeJobRepository())
	defer s.Stop()

	s.RegisterHandler("test-job", func(context.Context, *job.Job) error { return nil })

	refID := uuid.New()
	_, err := s.CreateJob(context.Background(), "test-job", "test", refID, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	_, err = s.CreateJob(context.Background(), "test-job", "test", refID, time.Now().Add(2*time.Hour), nil)
	require.ErrorIs(t, err, shared.ErrJobAlreadyScheduled)
}

func TestCancelJobPreventsExecution(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	var ran bool
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		ran = true
		return nil
	})

	j, err := s.CreateJob(context.Background(), "test-job", "test", uuid.New(), time.Now().Add(100*time.Millisecond), nil)
	require.NoError(t, err)

	require.NoError(t, s.CancelJob(context.Background(), j.ID))
	assert.Equal(t, job.StatusCancelled, repo.statusOf(t, j.ID))

	time.Sleep(300 * time.Millisecond)
	assert.False(t, ran, "cancelled job must not execute")
}

func TestConcurrentCreateJobOneWins(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	s.RegisterHandler("test-job", func(context.Context, *job.Job) error { return nil })

	// Racing creates for the same (type, reference) slip past the lookup;
	// the storage uniqueness check must let exactly one through.
	refID := uuid.New()
	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateJob(context.Background(), "test-job", "test", refID, time.Now().Add(time.Hour), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var created, rejected int
	for err := range errs {
		if err == nil {
			created++
		} else {
			require.ErrorIs(t, err, shared.ErrJobAlreadyScheduled)
			rejected++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, racers-1, rejected)
}

func TestCancelWhileRunningStaysCancelled(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	var attempts int
	var mu sync.Mutex
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		close(started)
		<-release
		return errors.New("late failure")
	})

	j, err := s.CreateJob(context.Background(), "test-job", "test", uuid.New(), time.Now(), nil)
	require.NoError(t, err)

	<-started
	require.NoError(t, s.CancelJob(context.Background(), j.ID))
	assert.Equal(t, job.StatusCancelled, repo.statusOf(t, j.ID))

	// The late handler result must not overwrite the cancellation or
	// queue a retry.
	close(release)
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, job.StatusCancelled, repo.statusOf(t, j.ID))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "cancelled job must not retry")
}

func TestRescheduleJobMovesRunTime(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	done := make(chan struct{}, 1)
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		done <- struct{}{}
		return nil
	})

	refID := uuid.New()
	j, err := s.CreateJob(context.Background(), "test-job", "test", refID, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	runAt := time.Now().Add(50 * time.Millisecond)
	require.NoError(t, s.RescheduleJob(context.Background(), "test-job", refID, runAt))

	moved, err := repo.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.True(t, moved.RunAt.Equal(runAt))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("rescheduled job never ran")
	}

	waitForStatus(t, repo, j.ID, job.StatusCompleted)
}

func TestRescheduleWhileRunningRunsAgain(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	var attempts int
	var mu sync.Mutex
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return nil
	})

	refID := uuid.New()
	j, err := s.CreateJob(context.Background(), "test-job", "test", refID, time.Now(), nil)
	require.NoError(t, err)

	// The reschedule lands while the first attempt is still running; its
	// completion must not mark the job done.
	<-started
	require.NoError(t, s.RescheduleJob(context.Background(), "test-job", refID, time.Now().Add(50*time.Millisecond)))
	close(release)

	waitForStatus(t, repo, j.ID, job.StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts, "the new timer runs the job once more")
}

func TestFailingJobRetriesThenFails(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	var attempts int
	var mu sync.Mutex
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	})

	cfg := &job.Config{MaxRetries: 2, RetryDelay: 20 * time.Millisecond, Timeout: time.Second}
	j, err := s.CreateJob(context.Background(), "test-job", "test", uuid.New(), time.Now(), cfg)
	require.NoError(t, err)

	waitForStatus(t, repo, j.ID, job.StatusFailed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	final, err := repo.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", final.LastError)
}

func TestPanickingHandlerDoesNotKillScheduler(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		panic("handler exploded")
	})

	cfg := &job.Config{MaxRetries: 0, RetryDelay: time.Millisecond, Timeout: time.Second}
	j, err := s.CreateJob(context.Background(), "test-job", "test", uuid.New(), time.Now(), cfg)
	require.NoError(t, err)

	waitForStatus(t, repo, j.ID, job.StatusFailed)
}

func TestStartRearmsPersistedJobs(t *testing.T) {
	repo := newFakeJobRepository()

	// A job persisted by a previous process, already past its run time.
	persisted := &job.Job{
		ID:          uuid.New(),
		Type:        "test-job",
		ReferenceID: uuid.New(),
		RunAt:       time.Now().Add(-time.Minute),
		Status:      job.StatusPending,
		Config:      job.DefaultConfig(),
		CreatedAt:   time.Now().Add(-time.Hour),
		UpdatedAt:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), persisted))

	s := newTestScheduler(repo)
	defer s.Stop()

	done := make(chan struct{}, 1)
	s.RegisterHandler("test-job", func(context.Context, *job.Job) error {
		done <- struct{}{}
		return nil
	})

	require.NoError(t, s.Start())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("reloaded job never ran")
	}

	waitForStatus(t, repo, persisted.ID, job.StatusCompleted)
}

func TestCancelJobsForReference(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	s.RegisterHandler(job.TypeStartAuction, func(context.Context, *job.Job) error { return nil })
	s.RegisterHandler(job.TypeEndAuction, func(context.Context, *job.Job) error { return nil })

	refID := uuid.New()
	start, err := s.CreateJob(context.Background(), job.TypeStartAuction, job.EntityAuction, refID, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	end, err := s.CreateJob(context.Background(), job.TypeEndAuction, job.EntityAuction, refID, time.Now().Add(2*time.Hour), nil)
	require.NoError(t, err)

	require.NoError(t, s.CancelJobsForReference(context.Background(), refID))

	assert.Equal(t, job.StatusCancelled, repo.statusOf(t, start.ID))
	assert.Equal(t, job.StatusCancelled, repo.statusOf(t, end.ID))
}

func TestMaintenanceSweep(t *testing.T) {
	repo := newFakeJobRepository()
	s := newTestScheduler(repo)
	defer s.Stop()

	old := time.Now().Add(-30 * 24 * time.Hour)
	staleCompleted := &job.Job{
		ID: uuid.New(), Type: "x", ReferenceID: uuid.New(),
		Status: job.StatusCompleted, Config: job.DefaultConfig(), UpdatedAt: old,
	}
	started := time.Now().Add(-48 * time.Hour)
	stuck := &job.Job{
		ID: uuid.New(), Type: "x", ReferenceID: uuid.New(),
		Status: job.StatusRunning, Config: job.DefaultConfig(),
		StartedAt: &started, UpdatedAt: started,
	}
	require.NoError(t, repo.Create(context.Background(), staleCompleted))
	require.NoError(t, repo.Create(context.Background(), stuck))

	s.runMaintenance()

	_, err := repo.GetByID(context.Background(), staleCompleted.ID)
	assert.ErrorIs(t, err, shared.ErrJobNotFound)
	assert.Equal(t, job.StatusFailed, repo.statusOf(t, stuck.ID))
}
