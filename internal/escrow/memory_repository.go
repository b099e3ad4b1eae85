package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gigpay/gigpay/internal/ledger"
)

type memoryRepository struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	holds     map[string]*Hold
	holdByJob map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		jobs:      make(map[string]*Job),
		holds:     make(map[string]*Hold),
		holdByJob: make(map[string]string),
	}
}

func (r *memoryRepository) CreateJob(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	stored := job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *memoryRepository) Job(_ context.Context, jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ledger.ErrNotFound)
	}
	return *job, nil
}

func (r *memoryRepository) Award(_ context.Context, jobID, freelancerID string, hold *Hold) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ledger.ErrNotFound)
	}
	if job.Status != JobOpen {
		return Job{}, fmt.Errorf("job %s is %s, not open: %w", jobID, job.Status, ledger.ErrInvalidStateTransition)
	}

	now := time.Now().UTC()
	job.Status = JobInProgress
	job.FreelancerID = freelancerID
	job.AwardedAt = &now

	if hold != nil {
		stored := *hold
		r.holds[hold.ID] = &stored
		r.holdByJob[jobID] = hold.ID
	}
	return *job, nil
}

func (r *memoryRepository) HoldByJob(_ context.Context, jobID string) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.holdByJob[jobID]
	if !ok {
		return Hold{}, fmt.Errorf("hold for job %s: %w", jobID, ledger.ErrNotFound)
	}
	return *r.holds[id], nil
}

func (r *memoryRepository) ResolveHold(_ context.Context, holdID string, state HoldState) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, ok := r.holds[holdID]
	if !ok {
		return Hold{}, fmt.Errorf("hold %s: %w", holdID, ledger.ErrNotFound)
	}
	if hold.State != HoldHeld {
		return Hold{}, fmt.Errorf("hold %s is %s: %w", holdID, hold.State, ledger.ErrInvalidStateTransition)
	}
	if state != HoldReleased && state != HoldRefunded {
		return Hold{}, fmt.Errorf("hold %s cannot move to %s: %w", holdID, state, ledger.ErrInvalidStateTransition)
	}

	now := time.Now().UTC()
	hold.State = state
	hold.ResolvedAt = &now
	return *hold, nil
}

func (r *memoryRepository) MarkCompleted(_ context.Context, jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ledger.ErrNotFound)
	}
	if job.Status != JobInProgress {
		return Job{}, fmt.Errorf("job %s is %s, not in progress: %w", jobID, job.Status, ledger.ErrInvalidStateTransition)
	}

	now := time.Now().UTC()
	job.Status = JobCompleted
	job.CompletedAt = &now
	return *job, nil
}

func (r *memoryRepository) MarkCancelled(_ context.Context, jobID, reason string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ledger.ErrNotFound)
	}
	if job.Status != JobOpen && job.Status != JobInProgress {
		return Job{}, fmt.Errorf("job %s is %s: %w", jobID, job.Status, ledger.ErrInvalidStateTransition)
	}

	now := time.Now().UTC()
	job.Status = JobCancelled
	job.CancelReason = reason
	job.CancelledAt = &now
	return *job, nil
}
