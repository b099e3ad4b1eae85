package escrow

import "context"

// Repository persists jobs and escrow holds. Award and the hold-state
// transitions are compare-and-swap operations so concurrent callers cannot both
// win; Award persists the job transition and the hold as one atomic unit.
type Repository interface {
	CreateJob(ctx context.Context, job Job) error
	Job(ctx context.Context, jobID string) (Job, error)

	// Award moves an open job to in_progress, stamps the freelancer and award
	// time, and, when hold is non-nil, persists it in the same unit. Fails
	// ErrInvalidStateTransition when the job is not open.
	Award(ctx context.Context, jobID, freelancerID string, hold *Hold) (Job, error)

	// HoldByJob returns the hold for a job, ErrNotFound when the job was awarded
	// without immediate payment.
	HoldByJob(ctx context.Context, jobID string) (Hold, error)

	// ResolveHold moves a HELD hold to the given terminal state. Fails
	// ErrInvalidStateTransition when the hold is already terminal.
	ResolveHold(ctx context.Context, holdID string, state HoldState) (Hold, error)

	// MarkCompleted moves an in_progress job to completed.
	MarkCompleted(ctx context.Context, jobID string) (Job, error)

	// MarkCancelled moves an open or in_progress job to cancelled.
	MarkCancelled(ctx context.Context, jobID, reason string) (Job, error)
}
