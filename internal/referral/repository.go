package referral

import (
	"context"
	"errors"
)

// ErrRefereeAlreadyReferred indicates a second referral was registered for the
// same referee.
var ErrRefereeAlreadyReferred = errors.New("referee already referred")

// Repository persists referrals. Complete is a compare-and-swap so a referral
// moves PENDING to COMPLETED exactly once.
type Repository interface {
	Create(ctx context.Context, r Referral) error
	Get(ctx context.Context, id string) (Referral, error)

	// Complete transitions a PENDING referral to COMPLETED, recording the
	// qualifying action. Fails ErrAlreadyCompleted when already completed.
	Complete(ctx context.Context, id, action string) (Referral, error)

	// CountCompleted returns the referrer's lifetime completed-referral count.
	CountCompleted(ctx context.Context, referrerID string) (int64, error)
}
