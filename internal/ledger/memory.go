package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.Mutex
	wallets map[string]*Wallet // keyed by wallet id
	byOwner map[string]string  // owner|currency -> wallet id
	entries map[string][]Entry // keyed by wallet id, append order
}

// NewInMemory creates a concurrency-safe in-memory store. A single mutex guards
// every mutation, which satisfies per-wallet exclusion; it is meant for tests
// and development mode, not scale.
func NewInMemory() Store {
	return &memoryStore{
		wallets: make(map[string]*Wallet),
		byOwner: make(map[string]string),
		entries: make(map[string][]Entry),
	}
}

func ownerKey(ownerID, currency string) string {
	return ownerID + "|" + currency
}

func (s *memoryStore) GetOrCreateWallet(_ context.Context, ownerID, currency string) (Wallet, error) {
	if ownerID == "" || currency == "" {
		return Wallet{}, fmt.Errorf("owner id and currency are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byOwner[ownerKey(ownerID, currency)]; ok {
		return *s.wallets[id], nil
	}

	now := time.Now().UTC()
	w := &Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.byOwner[ownerKey(ownerID, currency)] = w.ID
	return *w, nil
}

func (s *memoryStore) Wallet(_ context.Context, walletID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	return *w, nil
}

func (s *memoryStore) WalletByOwner(_ context.Context, ownerID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOwner[ownerKey(ownerID, currency)]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet for owner %s (%s): %w", ownerID, currency, ErrNotFound)
	}
	return *s.wallets[id], nil
}

func (s *memoryStore) ApplyEntry(_ context.Context, input ApplyInput) (Entry, Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(input)
}

func (s *memoryStore) ApplyEntryCapped(_ context.Context, input ApplyInput, maxOccurrences int64) (Entry, Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxOccurrences > 0 {
		var count int64
		for _, e := range s.entries[input.WalletID] {
			if e.Status == StatusCompleted && e.Reference == input.Reference {
				count++
			}
		}
		if count >= maxOccurrences {
			return Entry{}, Wallet{}, fmt.Errorf("reference %s/%s posted %d times: %w",
				input.Reference.Kind, input.Reference.ID, count, ErrLimitReached)
		}
	}
	return s.applyLocked(input)
}

// applyLocked performs the posting under the store mutex. It stages the effect on
// copies and commits only when the whole posting succeeds, so a failure leaves
// neither wallet nor log changed.
func (s *memoryStore) applyLocked(input ApplyInput) (Entry, Wallet, error) {
	w, ok := s.wallets[input.WalletID]
	if !ok {
		return Entry{}, Wallet{}, fmt.Errorf("wallet %s: %w", input.WalletID, ErrNotFound)
	}

	staged := *w
	var payee *Wallet
	var stagedPayee Wallet
	if input.Kind == KindRelease {
		payee, ok = s.wallets[input.PayeeWalletID]
		if !ok {
			return Entry{}, Wallet{}, fmt.Errorf("payee wallet %s: %w", input.PayeeWalletID, ErrNotFound)
		}
		stagedPayee = *payee
	}

	var stagedPayeePtr *Wallet
	if payee != nil {
		stagedPayeePtr = &stagedPayee
	}
	if err := applyEffect(&staged, stagedPayeePtr, input.Amount, input.Kind); err != nil {
		return Entry{}, Wallet{}, err
	}

	now := time.Now().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		WalletID:  input.WalletID,
		Amount:    input.Amount,
		Kind:      input.Kind,
		Status:    StatusCompleted,
		Reference: input.Reference,
		Metadata:  copyMetadata(input.Metadata),
		CreatedAt: now,
	}

	staged.UpdatedAt = now
	*w = staged
	s.entries[w.ID] = append(s.entries[w.ID], entry)

	if payee != nil {
		stagedPayee.UpdatedAt = now
		*payee = stagedPayee
		s.entries[payee.ID] = append(s.entries[payee.ID], Entry{
			ID:        uuid.NewString(),
			WalletID:  payee.ID,
			Amount:    input.Amount,
			Kind:      KindCredit,
			Status:    StatusCompleted,
			Reference: input.Reference,
			Metadata:  copyMetadata(input.Metadata),
			CreatedAt: now,
		})
	}

	return entry, staged, nil
}

func (s *memoryStore) ClaimAccrued(_ context.Context, walletID string, totalAccrued int64, ref Reference, metadata map[string]string) (Entry, Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return Entry{}, Wallet{}, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}

	var claimed int64
	for _, e := range s.entries[walletID] {
		if e.Status == StatusCompleted && e.Kind == KindCredit && e.Reference.Kind == ref.Kind {
			claimed += e.Amount
		}
	}

	claimable := totalAccrued - claimed
	if claimable <= 0 {
		return Entry{}, Wallet{}, fmt.Errorf("accrued %d, already claimed %d: %w", totalAccrued, claimed, ErrNothingToClaim)
	}

	entry, updated, err := s.applyLocked(ApplyInput{
		WalletID:  walletID,
		Amount:    claimable,
		Kind:      KindCredit,
		Reference: ref,
		Metadata:  metadata,
	})
	if err != nil {
		return Entry{}, Wallet{}, err
	}
	return entry, updated, nil
}

func (s *memoryStore) Entries(_ context.Context, walletID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	out := make([]Entry, len(s.entries[walletID]))
	copy(out, s.entries[walletID])
	return out, nil
}

func (s *memoryStore) EntriesByReference(_ context.Context, walletID, refKind string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	var out []Entry
	for _, e := range s.entries[walletID] {
		if e.Status == StatusCompleted && e.Reference.Kind == refKind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) Reconcile(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}

	available, escrow, earned, withdrawn := replay(s.entries[walletID])
	if available != w.Available || escrow != w.Escrow || earned != w.TotalEarned || withdrawn != w.TotalWithdrawn {
		return fmt.Errorf("wallet %s out of balance: replayed available=%d escrow=%d earned=%d withdrawn=%d, stored available=%d escrow=%d earned=%d withdrawn=%d",
			walletID, available, escrow, earned, withdrawn, w.Available, w.Escrow, w.TotalEarned, w.TotalWithdrawn)
	}
	return nil
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
