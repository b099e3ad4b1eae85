package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientFunds occurs when a debit or withdrawal exceeds the wallet's
	// available balance. Mutations that fail this way leave the wallet untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidStateTransition indicates an escrow hold, job, or referral was asked
	// to move from a terminal or incompatible state.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNothingToClaim indicates the claimable amount at computation time was zero
	// or negative.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrAlreadyCompleted indicates a referral was completed a second time.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrNotFound indicates an unknown wallet, job, or referral identifier.
	ErrNotFound = errors.New("not found")

	// ErrLimitReached indicates a capped posting already reached its maximum
	// number of occurrences for the reference.
	ErrLimitReached = errors.New("entry limit reached")
)

// InsufficientFundsError carries the amounts involved in a rejected debit so the
// caller can offer an alternative funding path. It unwraps to ErrInsufficientFunds.
type InsufficientFundsError struct {
	WalletID  string
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: required %d, available %d", e.WalletID, e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is the amount missing from the available balance.
func (e *InsufficientFundsError) Shortfall() int64 { return e.Required - e.Available }

// Kind classifies the balance effect of a ledger entry.
type Kind string

const (
	KindCredit     Kind = "credit"
	KindDebit      Kind = "debit"
	KindRelease    Kind = "release"
	KindRefund     Kind = "refund"
	KindWithdrawal Kind = "withdrawal"
)

// Status is the lifecycle state of a ledger entry. Entries written by ApplyEntry
// are always COMPLETED; PENDING and FAILED exist for imported and rejected rows.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Reference kinds linking an entry to the resource that caused it.
const (
	RefJob           = "job"
	RefReferralClaim = "referral_claim"
	RefReward        = "reward"
	RefWithdrawal    = "withdrawal"
)

// Reference links a ledger entry to a domain resource.
type Reference struct {
	Kind string
	ID   string
}

// Wallet is the per-owner, per-currency balance record. Every balance field stays
// non-negative; TotalEarned and TotalWithdrawn only grow.
type Wallet struct {
	ID             string
	OwnerID        string
	Currency       string
	Available      int64
	Pending        int64
	Escrow         int64
	TotalEarned    int64
	TotalWithdrawn int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Entry is one immutable balance-affecting event. A COMPLETED entry is never
// edited or reused.
type Entry struct {
	ID        string
	WalletID  string
	Amount    int64
	Kind      Kind
	Status    Status
	Reference Reference
	Metadata  map[string]string
	CreatedAt time.Time
}

// ApplyInput describes one posting. PayeeWalletID is required for RELEASE, which
// moves funds out of the payer's escrow and credits the payee; all other kinds
// touch WalletID only.
type ApplyInput struct {
	WalletID      string
	PayeeWalletID string
	Amount        int64
	Kind          Kind
	Reference     Reference
	Metadata      map[string]string
}

// Store owns wallet balances and the append-only entry log. It is the only
// component allowed to mutate a balance; every mutation is atomic per wallet.
type Store interface {
	// GetOrCreateWallet returns the wallet for owner+currency, creating it with
	// zero balances when absent.
	GetOrCreateWallet(ctx context.Context, ownerID, currency string) (Wallet, error)

	// Wallet fetches a wallet by id.
	Wallet(ctx context.Context, walletID string) (Wallet, error)

	// WalletByOwner fetches a wallet by owner+currency without creating it.
	WalletByOwner(ctx context.Context, ownerID, currency string) (Wallet, error)

	// ApplyEntry atomically applies the balance effect of the given kind and
	// appends a COMPLETED entry recording it. On failure no entry exists and the
	// wallet is untouched. The returned wallet carries the balances as committed
	// by this posting, read inside the same critical section. For RELEASE the
	// returned entry is the payer-side one; a matching CREDIT entry is appended
	// to the payee wallet in the same unit.
	ApplyEntry(ctx context.Context, input ApplyInput) (Entry, Wallet, error)

	// ApplyEntryCapped behaves like ApplyEntry but fails ErrLimitReached once
	// maxOccurrences COMPLETED entries with the same reference exist on the
	// wallet. The count and the posting are one atomic unit, so concurrent
	// callers cannot both slip under the cap. maxOccurrences <= 0 means no cap.
	ApplyEntryCapped(ctx context.Context, input ApplyInput, maxOccurrences int64) (Entry, Wallet, error)

	// ClaimAccrued credits the difference between totalAccrued and the sum of
	// COMPLETED credits already recorded against ref.Kind on this wallet, as a
	// single transaction. It fails ErrNothingToClaim when the difference is not
	// positive. The sum and the credit cannot interleave with a concurrent claim
	// on the same wallet, which makes repeat claims structurally idempotent.
	ClaimAccrued(ctx context.Context, walletID string, totalAccrued int64, ref Reference, metadata map[string]string) (Entry, Wallet, error)

	// Entries lists all entries for a wallet, oldest first.
	Entries(ctx context.Context, walletID string) ([]Entry, error)

	// EntriesByReference lists COMPLETED entries for a wallet filtered by
	// reference kind, oldest first.
	EntriesByReference(ctx context.Context, walletID, refKind string) ([]Entry, error)

	// Reconcile replays the wallet's COMPLETED entries and verifies they
	// reconstruct the stored balances exactly.
	Reconcile(ctx context.Context, walletID string) error
}

// applyEffect mutates wallet structs for one posting. Both backends funnel
// through it so the balance rules live in one place. payee is nil except for
// RELEASE.
func applyEffect(w *Wallet, payee *Wallet, amount int64, kind Kind) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", amount)
	}

	switch kind {
	case KindCredit:
		w.Available += amount
		w.TotalEarned += amount
	case KindDebit:
		if w.Available < amount {
			return &InsufficientFundsError{WalletID: w.ID, Required: amount, Available: w.Available}
		}
		w.Available -= amount
		w.Escrow += amount
	case KindRelease:
		if payee == nil {
			return fmt.Errorf("release requires a payee wallet")
		}
		if w.Escrow < amount {
			return fmt.Errorf("release of %d exceeds escrow balance %d: %w", amount, w.Escrow, ErrInvalidStateTransition)
		}
		w.Escrow -= amount
		payee.Available += amount
		payee.TotalEarned += amount
	case KindRefund:
		if w.Escrow < amount {
			return fmt.Errorf("refund of %d exceeds escrow balance %d: %w", amount, w.Escrow, ErrInvalidStateTransition)
		}
		w.Escrow -= amount
		w.Available += amount
	case KindWithdrawal:
		if w.Available < amount {
			return &InsufficientFundsError{WalletID: w.ID, Required: amount, Available: w.Available}
		}
		w.Available -= amount
		w.TotalWithdrawn += amount
	default:
		return fmt.Errorf("unknown entry kind %q", kind)
	}

	return nil
}

// replay recomputes wallet balances from scratch out of its COMPLETED entries.
// Payee-side release credits are stored as regular CREDIT entries, so a single
// wallet's log is self-contained.
func replay(entries []Entry) (available, escrow, earned, withdrawn int64) {
	for _, e := range entries {
		if e.Status != StatusCompleted {
			continue
		}
		switch e.Kind {
		case KindCredit:
			available += e.Amount
			earned += e.Amount
		case KindDebit:
			available -= e.Amount
			escrow += e.Amount
		case KindRelease:
			escrow -= e.Amount
		case KindRefund:
			escrow -= e.Amount
			available += e.Amount
		case KindWithdrawal:
			available -= e.Amount
			withdrawn += e.Amount
		}
	}
	return available, escrow, earned, withdrawn
}
