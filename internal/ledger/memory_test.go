package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestWallet(t *testing.T, s Store, owner string) Wallet {
	t.Helper()
	w, err := s.GetOrCreateWallet(context.Background(), owner, "USD")
	if err != nil {
		t.Fatalf("create wallet for %s: %v", owner, err)
	}
	return w
}

func credit(t *testing.T, s Store, walletID string, amount int64) {
	t.Helper()
	if _, _, err := s.ApplyEntry(context.Background(), ApplyInput{WalletID: walletID, Amount: amount, Kind: KindCredit}); err != nil {
		t.Fatalf("credit %d: %v", amount, err)
	}
}

func TestGetOrCreateWalletIsIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	first, err := s.GetOrCreateWallet(ctx, "owner-1", "USD")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.GetOrCreateWallet(ctx, "owner-1", "USD")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same wallet, got %s and %s", first.ID, second.ID)
	}
	if first.Available != 0 || first.Escrow != 0 || first.TotalEarned != 0 {
		t.Fatalf("new wallet has non-zero balances: %+v", first)
	}

	other, err := s.GetOrCreateWallet(ctx, "owner-1", "EUR")
	if err != nil {
		t.Fatalf("create other currency: %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("expected a distinct wallet per currency")
	}
}

func TestApplyEntryEffects(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	client := newTestWallet(t, s, "client")
	freelancer := newTestWallet(t, s, "freelancer")

	credit(t, s, client.ID, 10_000)

	if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: client.ID, Amount: 6_000, Kind: KindDebit, Reference: Reference{Kind: RefJob, ID: "job-1"}}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	w, _ := s.Wallet(ctx, client.ID)
	if w.Available != 4_000 || w.Escrow != 6_000 {
		t.Fatalf("after debit: available=%d escrow=%d", w.Available, w.Escrow)
	}

	if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: client.ID, PayeeWalletID: freelancer.ID, Amount: 6_000, Kind: KindRelease, Reference: Reference{Kind: RefJob, ID: "job-1"}}); err != nil {
		t.Fatalf("release: %v", err)
	}
	w, _ = s.Wallet(ctx, client.ID)
	if w.Escrow != 0 {
		t.Fatalf("client escrow not cleared: %d", w.Escrow)
	}
	fw, _ := s.Wallet(ctx, freelancer.ID)
	if fw.Available != 6_000 || fw.TotalEarned != 6_000 {
		t.Fatalf("freelancer after release: available=%d earned=%d", fw.Available, fw.TotalEarned)
	}

	if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: fw.ID, Amount: 1_000, Kind: KindWithdrawal}); err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	fw, _ = s.Wallet(ctx, freelancer.ID)
	if fw.Available != 5_000 || fw.TotalWithdrawn != 1_000 {
		t.Fatalf("after withdrawal: available=%d withdrawn=%d", fw.Available, fw.TotalWithdrawn)
	}

	for _, id := range []string{client.ID, freelancer.ID} {
		if err := s.Reconcile(ctx, id); err != nil {
			t.Fatalf("reconcile %s: %v", id, err)
		}
	}
}

func TestDebitInsufficientFundsCarriesShortfall(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "client")
	credit(t, s, w.ID, 50_000)

	_, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: w.ID, Amount: 60_000, Kind: KindDebit})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	var ife *InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %T", err)
	}
	if ife.Shortfall() != 10_000 {
		t.Fatalf("expected shortfall 10000, got %d", ife.Shortfall())
	}

	// Failed mutation leaves the wallet untouched.
	after, _ := s.Wallet(ctx, w.ID)
	if after.Available != 50_000 || after.Escrow != 0 {
		t.Fatalf("wallet changed on failure: %+v", after)
	}
	entries, _ := s.Entries(ctx, w.ID)
	if len(entries) != 1 {
		t.Fatalf("expected only the seed credit, got %d entries", len(entries))
	}
}

func TestRefundRestoresAvailable(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "client")
	credit(t, s, w.ID, 8_000)

	if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: w.ID, Amount: 3_000, Kind: KindDebit}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: w.ID, Amount: 3_000, Kind: KindRefund}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	after, _ := s.Wallet(ctx, w.ID)
	if after.Available != 8_000 || after.Escrow != 0 {
		t.Fatalf("refund did not restore balances: %+v", after)
	}

	// Refund beyond escrow is a state error, not an insufficient-funds one.
	_, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: w.ID, Amount: 1, Kind: KindRefund})
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state transition, got %v", err)
	}
}

func TestApplyEntryRejectsNonPositiveAmounts(t *testing.T) {
	s := NewInMemory()
	w := newTestWallet(t, s, "client")

	for _, amount := range []int64{0, -100} {
		if _, _, err := s.ApplyEntry(context.Background(), ApplyInput{WalletID: w.ID, Amount: amount, Kind: KindCredit}); err == nil {
			t.Fatalf("expected error for amount %d", amount)
		}
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "client")
	credit(t, s, w.ID, 10_000)

	const workers = 20
	const amount = int64(1_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.ApplyEntry(ctx, ApplyInput{WalletID: w.ID, Amount: amount, Kind: KindDebit}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 debits to succeed, got %d", succeeded)
	}
	after, _ := s.Wallet(ctx, w.ID)
	if after.Available != 0 || after.Escrow != 10_000 {
		t.Fatalf("unexpected balances after concurrent debits: %+v", after)
	}
	if err := s.Reconcile(ctx, w.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}

func TestClaimAccruedIsStructurallyIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "referrer")
	ref := Reference{Kind: RefReferralClaim, ID: "referrer"}

	entry, updated, err := s.ClaimAccrued(ctx, w.ID, 400, ref, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if entry.Amount != 400 {
		t.Fatalf("expected claim of 400, got %d", entry.Amount)
	}
	if updated.Available != 400 {
		t.Fatalf("expected available 400, got %d", updated.Available)
	}

	if _, _, err := s.ClaimAccrued(ctx, w.ID, 400, ref, nil); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim, got %v", err)
	}

	// Accrual grew: only the difference is paid out.
	entry, _, err = s.ClaimAccrued(ctx, w.ID, 720, ref, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if entry.Amount != 320 {
		t.Fatalf("expected incremental claim of 320, got %d", entry.Amount)
	}
}

func TestConcurrentClaimsCreditOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "referrer")
	ref := Reference{Kind: RefReferralClaim, ID: "referrer"}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.ClaimAccrued(ctx, w.ID, 500, ref, nil)
			if err != nil && !errors.Is(err, ErrNothingToClaim) {
				t.Errorf("claim %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	after, _ := s.Wallet(ctx, w.ID)
	if after.Available != 500 {
		t.Fatalf("expected total credit of exactly 500, got %d", after.Available)
	}
}

func TestEntriesByReferenceFilters(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "owner")

	for i := 0; i < 3; i++ {
		if _, _, err := s.ApplyEntry(ctx, ApplyInput{
			WalletID:  w.ID,
			Amount:    100,
			Kind:      KindCredit,
			Reference: Reference{Kind: RefReferralClaim, ID: fmt.Sprintf("claim-%d", i)},
		}); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	credit(t, s, w.ID, 999)

	claims, err := s.EntriesByReference(ctx, w.ID, RefReferralClaim)
	if err != nil {
		t.Fatalf("entries by reference: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claim entries, got %d", len(claims))
	}

	all, _ := s.Entries(ctx, w.ID)
	if len(all) != 4 {
		t.Fatalf("expected 4 entries total, got %d", len(all))
	}
}

func TestWalletNotFound(t *testing.T) {
	s := NewInMemory()
	if _, err := s.Wallet(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := s.ApplyEntry(context.Background(), ApplyInput{WalletID: "missing", Amount: 1, Kind: KindCredit}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on apply, got %v", err)
	}
}

func TestApplyEntryReturnsCommittedBalances(t *testing.T) {
	s := NewInMemory()
	w := newTestWallet(t, s, "owner-1")

	_, updated, err := s.ApplyEntry(context.Background(), ApplyInput{WalletID: w.ID, Amount: 2_500, Kind: KindCredit})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if updated.Available != 2_500 || updated.TotalEarned != 2_500 {
		t.Fatalf("returned wallet does not reflect the posting: %+v", updated)
	}

	stored, err := s.Wallet(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if stored.Available != updated.Available {
		t.Fatalf("stored available %d differs from returned %d", stored.Available, updated.Available)
	}
}

func TestApplyEntryCappedEnforcesLimit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "owner-1")

	input := ApplyInput{
		WalletID:  w.ID,
		Amount:    500,
		Kind:      KindCredit,
		Reference: Reference{Kind: RefReward, ID: "signup_bonus"},
	}

	for i := 0; i < 2; i++ {
		if _, _, err := s.ApplyEntryCapped(ctx, input, 2); err != nil {
			t.Fatalf("capped posting %d: %v", i, err)
		}
	}
	if _, _, err := s.ApplyEntryCapped(ctx, input, 2); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected limit reached on third posting, got %v", err)
	}

	// A different reference id has its own count.
	other := input
	other.Reference.ID = "profile_completed"
	if _, _, err := s.ApplyEntryCapped(ctx, other, 2); err != nil {
		t.Fatalf("other reference: %v", err)
	}

	// Zero means no cap.
	if _, _, err := s.ApplyEntryCapped(ctx, other, 0); err != nil {
		t.Fatalf("uncapped posting: %v", err)
	}

	updated, _ := s.Wallet(ctx, w.ID)
	if updated.Available != 2_000 {
		t.Fatalf("available = %d, want 2000", updated.Available)
	}
}

func TestConcurrentCappedPostingsHonorLimit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newTestWallet(t, s, "owner-1")

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.ApplyEntryCapped(ctx, ApplyInput{
				WalletID:  w.ID,
				Amount:    500,
				Kind:      KindCredit,
				Reference: Reference{Kind: RefReward, ID: "signup_bonus"},
			}, 1)
			if err != nil {
				if !errors.Is(err, ErrLimitReached) {
					t.Errorf("capped posting: %v", err)
				}
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one posting under cap 1, got %d", succeeded)
	}
	updated, _ := s.Wallet(ctx, w.ID)
	if updated.Available != 500 {
		t.Fatalf("available = %d, want 500", updated.Available)
	}
}
