package referral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gigpay/gigpay/internal/ledger"
)

type memoryRepository struct {
	mu        sync.Mutex
	referrals map[string]*Referral
	byReferee map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		referrals: make(map[string]*Referral),
		byReferee: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, ref Referral) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReferee[ref.RefereeID]; exists {
		return fmt.Errorf("referee %s: %w", ref.RefereeID, ErrRefereeAlreadyReferred)
	}
	stored := ref
	r.referrals[ref.ID] = &stored
	r.byReferee[ref.RefereeID] = ref.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Referral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.referrals[id]
	if !ok {
		return Referral{}, fmt.Errorf("referral %s: %w", id, ledger.ErrNotFound)
	}
	return *ref, nil
}

func (r *memoryRepository) Complete(_ context.Context, id, action string) (Referral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.referrals[id]
	if !ok {
		return Referral{}, fmt.Errorf("referral %s: %w", id, ledger.ErrNotFound)
	}
	if ref.Status != StatusPending {
		return Referral{}, fmt.Errorf("referral %s: %w", id, ledger.ErrAlreadyCompleted)
	}

	now := time.Now().UTC()
	ref.Status = StatusCompleted
	ref.Action = action
	ref.CompletedAt = &now
	return *ref, nil
}

func (r *memoryRepository) CountCompleted(_ context.Context, referrerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, ref := range r.referrals {
		if ref.ReferrerID == referrerID && ref.Status == StatusCompleted {
			count++
		}
	}
	return count, nil
}
