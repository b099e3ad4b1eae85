package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gigpay/gigpay/internal/ledger"
	"github.com/gigpay/gigpay/internal/notification"
)

// Payment methods accepted by AwardJob.
const (
	PaymentWallet   = "wallet"
	PaymentDeferred = "deferred"
)

// PaymentOptions are the funding paths offered when the caller has not picked
// one yet.
var PaymentOptions = []string{PaymentWallet, PaymentDeferred}

// Service orchestrates the award/complete/cancel money flow for a job. It
// computes what should happen and asks the ledger store to make it happen;
// wallet balances are never touched directly.
type Service struct {
	repo     Repository
	ledger   ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
}

// NewService builds the escrow workflow service.
func NewService(repo Repository, store ledger.Store, notifier notification.Notifier, logger *slog.Logger, currency string) *Service {
	return &Service{repo: repo, ledger: store, notifier: notifier, logger: logger, currency: currency}
}

// CreateJobInput captures the data needed to post a job.
type CreateJobInput struct {
	ClientID string
	Title    string
	Budget   int64
}

// CreateJob posts an open job. Anything beyond posting (editing, listing,
// search) lives outside this service.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (Job, error) {
	if input.ClientID == "" {
		return Job{}, fmt.Errorf("client id is required")
	}
	if input.Budget <= 0 {
		return Job{}, fmt.Errorf("budget must be positive, got %d", input.Budget)
	}

	job := Job{
		ID:        uuid.NewString(),
		ClientID:  input.ClientID,
		Title:     input.Title,
		Budget:    input.Budget,
		Currency:  s.currency,
		Status:    JobOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Job fetches a job by id.
func (s *Service) Job(ctx context.Context, jobID string) (Job, error) {
	return s.repo.Job(ctx, jobID)
}

// AwardResult describes the outcome of an award attempt.
type AwardResult struct {
	Job                   Job
	Hold                  *Hold
	AmountPaid            int64
	RequiresPaymentMethod bool
	PaymentOptions        []string
}

// AwardJob assigns an open job to a freelancer. With PaymentWallet the budget is
// debited from the client's wallet into escrow before the job transitions; with
// PaymentDeferred the job transitions with no hold. An empty payment method
// returns the available options without touching the job.
func (s *Service) AwardJob(ctx context.Context, jobID, freelancerID, paymentMethod string) (AwardResult, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return AwardResult{}, err
	}
	if job.Status != JobOpen {
		return AwardResult{}, fmt.Errorf("job %s is %s, not open: %w", jobID, job.Status, ledger.ErrInvalidStateTransition)
	}
	if freelancerID == "" {
		return AwardResult{}, fmt.Errorf("freelancer id is required")
	}

	switch paymentMethod {
	case "":
		return AwardResult{RequiresPaymentMethod: true, PaymentOptions: PaymentOptions}, nil

	case PaymentDeferred:
		awarded, err := s.repo.Award(ctx, jobID, freelancerID, nil)
		if err != nil {
			return AwardResult{}, err
		}
		notification.Dispatch(s.notifier, s.logger, freelancerID, notification.TemplateJobAwarded, map[string]any{
			"job_id": jobID, "amount_paid": int64(0),
		})
		return AwardResult{Job: awarded}, nil

	case PaymentWallet:
		return s.awardWithWalletPayment(ctx, job, freelancerID)

	default:
		return AwardResult{}, fmt.Errorf("unknown payment method %q", paymentMethod)
	}
}

func (s *Service) awardWithWalletPayment(ctx context.Context, job Job, freelancerID string) (AwardResult, error) {
	clientWallet, err := s.ledger.GetOrCreateWallet(ctx, job.ClientID, job.Currency)
	if err != nil {
		return AwardResult{}, err
	}

	// Debit into escrow first; InsufficientFunds propagates with the shortfall
	// and leaves the job untouched.
	if _, _, err := s.ledger.ApplyEntry(ctx, ledger.ApplyInput{
		WalletID:  clientWallet.ID,
		Amount:    job.Budget,
		Kind:      ledger.KindDebit,
		Reference: ledger.Reference{Kind: ledger.RefJob, ID: job.ID},
	}); err != nil {
		return AwardResult{}, err
	}

	hold := &Hold{
		ID:           uuid.NewString(),
		JobID:        job.ID,
		ClientID:     job.ClientID,
		FreelancerID: freelancerID,
		Amount:       job.Budget,
		State:        HoldHeld,
		CreatedAt:    time.Now().UTC(),
	}

	awarded, err := s.repo.Award(ctx, job.ID, freelancerID, hold)
	if err != nil {
		// The job transition lost a race after the debit went through; return
		// the funds so no money is stranded in escrow.
		if _, _, refundErr := s.ledger.ApplyEntry(ctx, ledger.ApplyInput{
			WalletID:  clientWallet.ID,
			Amount:    job.Budget,
			Kind:      ledger.KindRefund,
			Reference: ledger.Reference{Kind: ledger.RefJob, ID: job.ID},
		}); refundErr != nil {
			s.logger.Error("compensating refund failed", "job_id", job.ID, "wallet_id", clientWallet.ID, "error", refundErr)
		}
		return AwardResult{}, err
	}

	notification.Dispatch(s.notifier, s.logger, freelancerID, notification.TemplateJobAwarded, map[string]any{
		"job_id": job.ID, "amount_paid": job.Budget,
	})

	return AwardResult{Job: awarded, Hold: hold, AmountPaid: job.Budget}, nil
}

// CompleteJob releases escrowed funds to the freelancer and marks the job
// completed. A job awarded without immediate payment completes with no fund
// movement.
func (s *Service) CompleteJob(ctx context.Context, jobID string) (Job, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return Job{}, err
	}

	hold, err := s.repo.HoldByJob(ctx, jobID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// Deferred award: no funds to move.
	case err != nil:
		return Job{}, err
	case hold.State == HoldHeld:
		clientWallet, err := s.ledger.WalletByOwner(ctx, job.ClientID, job.Currency)
		if err != nil {
			return Job{}, err
		}
		freelancerWallet, err := s.ledger.GetOrCreateWallet(ctx, hold.FreelancerID, job.Currency)
		if err != nil {
			return Job{}, err
		}
		// Resolving the hold first makes it the exactly-once token: of two
		// concurrent completions only the CAS winner moves funds.
		if _, err := s.repo.ResolveHold(ctx, hold.ID, HoldReleased); err != nil {
			return Job{}, err
		}
		if _, _, err := s.ledger.ApplyEntry(ctx, ledger.ApplyInput{
			WalletID:      clientWallet.ID,
			PayeeWalletID: freelancerWallet.ID,
			Amount:        hold.Amount,
			Kind:          ledger.KindRelease,
			Reference:     ledger.Reference{Kind: ledger.RefJob, ID: jobID},
		}); err != nil {
			s.logger.Error("release after hold resolution failed", "job_id", jobID, "hold_id", hold.ID, "error", err)
			return Job{}, err
		}
	}

	completed, err := s.repo.MarkCompleted(ctx, jobID)
	if err != nil {
		return Job{}, err
	}

	notification.Dispatch(s.notifier, s.logger, completed.FreelancerID, notification.TemplateJobCompleted, map[string]any{
		"job_id": jobID, "amount": hold.Amount,
	})
	return completed, nil
}

// CancelJob refunds escrowed funds to the client, if any, and marks the job
// cancelled.
func (s *Service) CancelJob(ctx context.Context, jobID, reason string) (Job, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return Job{}, err
	}

	hold, err := s.repo.HoldByJob(ctx, jobID)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// No escrow to unwind.
	case err != nil:
		return Job{}, err
	case hold.State == HoldHeld:
		clientWallet, err := s.ledger.WalletByOwner(ctx, job.ClientID, job.Currency)
		if err != nil {
			return Job{}, err
		}
		if _, err := s.repo.ResolveHold(ctx, hold.ID, HoldRefunded); err != nil {
			return Job{}, err
		}
		if _, _, err := s.ledger.ApplyEntry(ctx, ledger.ApplyInput{
			WalletID:  clientWallet.ID,
			Amount:    hold.Amount,
			Kind:      ledger.KindRefund,
			Reference: ledger.Reference{Kind: ledger.RefJob, ID: jobID},
		}); err != nil {
			s.logger.Error("refund after hold resolution failed", "job_id", jobID, "hold_id", hold.ID, "error", err)
			return Job{}, err
		}
	}

	cancelled, err := s.repo.MarkCancelled(ctx, jobID, reason)
	if err != nil {
		return Job{}, err
	}

	notification.Dispatch(s.notifier, s.logger, cancelled.ClientID, notification.TemplateJobCancelled, map[string]any{
		"job_id": jobID, "reason": reason,
	})
	return cancelled, nil
}
