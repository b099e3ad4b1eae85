package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigpay/gigpay/internal/ledger"
)

// PostgresRepository stores jobs and escrow holds in PostgreSQL. State
// transitions are guarded WHERE clauses, so a lost race surfaces as
// ErrInvalidStateTransition instead of silently double-applying.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, client_id, freelancer_id, title, budget, currency, status, cancel_reason, created_at, awarded_at, completed_at, cancelled_at`

func (r *PostgresRepository) CreateJob(ctx context.Context, job Job) error {
	_, err := r.db.Exec(ctx, `INSERT INTO jobs (id, client_id, freelancer_id, title, budget, currency, status, cancel_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.ClientID, job.FreelancerID, job.Title, job.Budget, job.Currency, job.Status, job.CancelReason, job.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Job(ctx context.Context, jobID string) (Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ledger.ErrNotFound)
	}
	return job, err
}

func (r *PostgresRepository) Award(ctx context.Context, jobID, freelancerID string, hold *Hold) (Job, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Job{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `UPDATE jobs
        SET status = $3, freelancer_id = $4, awarded_at = $5
        WHERE id = $1 AND status = $2
        RETURNING `+jobColumns, jobID, JobOpen, JobInProgress, freelancerID, now)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or not open; look it up for the precise error.
		existing, lookupErr := r.Job(ctx, jobID)
		if lookupErr != nil {
			return Job{}, lookupErr
		}
		return Job{}, fmt.Errorf("job %s is %s, not open: %w", jobID, existing.Status, ledger.ErrInvalidStateTransition)
	}
	if err != nil {
		return Job{}, err
	}

	if hold != nil {
		if _, err := tx.Exec(ctx, `INSERT INTO escrow_holds (id, job_id, client_id, freelancer_id, amount, state, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			hold.ID, hold.JobID, hold.ClientID, hold.FreelancerID, hold.Amount, hold.State, hold.CreatedAt.UTC()); err != nil {
			return Job{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (r *PostgresRepository) HoldByJob(ctx context.Context, jobID string) (Hold, error) {
	row := r.db.QueryRow(ctx, `SELECT id, job_id, client_id, freelancer_id, amount, state, created_at, resolved_at
        FROM escrow_holds WHERE job_id = $1`, jobID)
	hold, err := scanHold(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Hold{}, fmt.Errorf("hold for job %s: %w", jobID, ledger.ErrNotFound)
	}
	return hold, err
}

func (r *PostgresRepository) ResolveHold(ctx context.Context, holdID string, state HoldState) (Hold, error) {
	if state != HoldReleased && state != HoldRefunded {
		return Hold{}, fmt.Errorf("hold %s cannot move to %s: %w", holdID, state, ledger.ErrInvalidStateTransition)
	}

	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE escrow_holds
        SET state = $3, resolved_at = $4
        WHERE id = $1 AND state = $2
        RETURNING id, job_id, client_id, freelancer_id, amount, state, created_at, resolved_at`,
		holdID, HoldHeld, state, now)
	hold, err := scanHold(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Hold{}, fmt.Errorf("hold %s is not held: %w", holdID, ledger.ErrInvalidStateTransition)
	}
	return hold, err
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, jobID string) (Job, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE jobs
        SET status = $3, completed_at = $4
        WHERE id = $1 AND status = $2
        RETURNING `+jobColumns, jobID, JobInProgress, JobCompleted, now)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, lookupErr := r.Job(ctx, jobID)
		if lookupErr != nil {
			return Job{}, lookupErr
		}
		return Job{}, fmt.Errorf("job %s is %s, not in progress: %w", jobID, existing.Status, ledger.ErrInvalidStateTransition)
	}
	return job, err
}

func (r *PostgresRepository) MarkCancelled(ctx context.Context, jobID, reason string) (Job, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE jobs
        SET status = $4, cancel_reason = $5, cancelled_at = $6
        WHERE id = $1 AND status IN ($2, $3)
        RETURNING `+jobColumns, jobID, JobOpen, JobInProgress, JobCancelled, reason, now)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, lookupErr := r.Job(ctx, jobID)
		if lookupErr != nil {
			return Job{}, lookupErr
		}
		return Job{}, fmt.Errorf("job %s is %s: %w", jobID, existing.Status, ledger.ErrInvalidStateTransition)
	}
	return job, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.ClientID, &j.FreelancerID, &j.Title, &j.Budget, &j.Currency,
		&j.Status, &j.CancelReason, &j.CreatedAt, &j.AwardedAt, &j.CompletedAt, &j.CancelledAt)
	if err != nil {
		return Job{}, err
	}
	j.CreatedAt = j.CreatedAt.UTC()
	return j, nil
}

func scanHold(row rowScanner) (Hold, error) {
	var h Hold
	err := row.Scan(&h.ID, &h.JobID, &h.ClientID, &h.FreelancerID, &h.Amount, &h.State, &h.CreatedAt, &h.ResolvedAt)
	if err != nil {
		return Hold{}, err
	}
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}
