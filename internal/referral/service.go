package referral

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gigpay/gigpay/internal/ledger"
	"github.com/gigpay/gigpay/internal/notification"
)

// Engine computes accrued referral rewards and pays them out through the
// ledger. Accrual is recomputed from scratch on every call: the completed count
// is repriced at the current tier multiplier and already-claimed entries are
// subtracted at face value. That keeps claims structurally idempotent and
// self-healing against base-reward changes, at the cost of an entry scan per
// computation (index (wallet_id, kind, ref_kind) covers it at scale).
type Engine struct {
	repo       Repository
	ledger     ledger.Store
	notifier   notification.Notifier
	logger     *slog.Logger
	tiers      []Tier
	baseReward int64
	currency   string
}

// NewEngine builds the accrual engine with the default tier schedule.
func NewEngine(repo Repository, store ledger.Store, notifier notification.Notifier, logger *slog.Logger, baseReward int64, currency string) *Engine {
	return &Engine{
		repo:       repo,
		ledger:     store,
		notifier:   notifier,
		logger:     logger,
		tiers:      DefaultTiers,
		baseReward: baseReward,
		currency:   currency,
	}
}

// Register records a referral relationship at signup processing. Each referee
// can be referred at most once.
func (e *Engine) Register(ctx context.Context, referrerID, refereeID string) (Referral, error) {
	if referrerID == "" || refereeID == "" {
		return Referral{}, fmt.Errorf("referrer and referee ids are required")
	}
	if referrerID == refereeID {
		return Referral{}, fmt.Errorf("self-referral is not allowed")
	}

	ref := Referral{
		ID:           uuid.NewString(),
		ReferrerID:   referrerID,
		RefereeID:    refereeID,
		Status:       StatusPending,
		RewardAmount: e.baseReward,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.repo.Create(ctx, ref); err != nil {
		return Referral{}, err
	}
	return ref, nil
}

// CompleteReferral transitions a referral to COMPLETED exactly once, triggered
// by the referee's qualifying action. Completion only grows the accrual; the
// payout happens on Claim.
func (e *Engine) CompleteReferral(ctx context.Context, referralID, action string) (Referral, error) {
	ref, err := e.repo.Complete(ctx, referralID, action)
	if err != nil {
		return Referral{}, err
	}

	notification.Dispatch(e.notifier, e.logger, ref.ReferrerID, notification.TemplateReferralCompleted, map[string]any{
		"referral_id": ref.ID, "action": action,
	})
	return ref, nil
}

// NextTierView describes the next multiplier step for a referrer.
type NextTierView struct {
	Count      int64
	Multiplier float64
}

// ChallengeView is the referrer-facing snapshot of the accrual state.
type ChallengeView struct {
	CompletedCount    int64
	CurrentMultiplier float64
	NextTier          *NextTierView
	ClaimableAmount   int64
	ClaimHistory      []ledger.Entry
}

// Challenge reports the referrer's current multiplier, the next tier if any,
// the amount claimable right now, and past claim payouts.
func (e *Engine) Challenge(ctx context.Context, referrerID string) (ChallengeView, error) {
	count, err := e.repo.CountCompleted(ctx, referrerID)
	if err != nil {
		return ChallengeView{}, err
	}

	view := ChallengeView{
		CompletedCount:    count,
		CurrentMultiplier: float64(Multiplier(e.tiers, count)) / 100,
	}
	if next, ok := Next(e.tiers, count); ok {
		view.NextTier = &NextTierView{Count: next.Min, Multiplier: float64(next.Percent) / 100}
	}

	w, err := e.ledger.GetOrCreateWallet(ctx, referrerID, e.currency)
	if err != nil {
		return ChallengeView{}, err
	}
	history, err := e.ledger.EntriesByReference(ctx, w.ID, ledger.RefReferralClaim)
	if err != nil {
		return ChallengeView{}, err
	}
	view.ClaimHistory = history

	var claimed int64
	for _, entry := range history {
		claimed += entry.Amount
	}
	claimable := totalPossible(e.tiers, count, e.baseReward) - claimed
	if claimable < 0 {
		// Claimed history can exceed the repriced total after a base-reward
		// drop; paid-out money is never clawed back, so show zero.
		claimable = 0
	}
	view.ClaimableAmount = claimable
	return view, nil
}

// ClaimResult describes a successful payout.
type ClaimResult struct {
	ClaimedAmount int64
	NewBalance    int64
}

// Claim materializes the accrued, unclaimed reward into a wallet credit. The
// subtraction of previously claimed entries happens inside the ledger store's
// per-wallet transaction, so a repeat or concurrent claim finds nothing left
// and fails ErrNothingToClaim.
func (e *Engine) Claim(ctx context.Context, referrerID string) (ClaimResult, error) {
	count, err := e.repo.CountCompleted(ctx, referrerID)
	if err != nil {
		return ClaimResult{}, err
	}

	w, err := e.ledger.GetOrCreateWallet(ctx, referrerID, e.currency)
	if err != nil {
		return ClaimResult{}, err
	}

	entry, updated, err := e.ledger.ClaimAccrued(ctx, w.ID,
		totalPossible(e.tiers, count, e.baseReward),
		ledger.Reference{Kind: ledger.RefReferralClaim, ID: referrerID},
		map[string]string{"completed_count": fmt.Sprintf("%d", count)},
	)
	if err != nil {
		return ClaimResult{}, err
	}

	notification.Dispatch(e.notifier, e.logger, referrerID, notification.TemplateReferralClaimed, map[string]any{
		"amount": entry.Amount,
	})

	return ClaimResult{ClaimedAmount: entry.Amount, NewBalance: updated.Available}, nil
}
