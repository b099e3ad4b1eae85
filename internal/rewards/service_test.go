package rewards

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gigpay/gigpay/internal/ledger"
	"github.com/gigpay/gigpay/internal/logging"
)

func newTestService(t *testing.T) (*Service, ledger.Store) {
	t.Helper()
	store := ledger.NewInMemory()
	svc := NewService(NewMemoryStore(DefaultConfigs), store, nil, logging.Discard(), "USD")
	return svc, store
}

func TestGrantCreditsConfiguredAmount(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Grant(ctx, "user-1", "signup_bonus")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if entry.Amount != 500 || entry.Kind != ledger.KindCredit {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Metadata["action"] != "signup_bonus" {
		t.Fatalf("missing action metadata: %+v", entry.Metadata)
	}

	w, err := store.WalletByOwner(ctx, "user-1", "USD")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if w.Available != 500 || w.TotalEarned != 500 {
		t.Fatalf("unexpected balances: %+v", w)
	}
}

func TestGrantHonorsPerUserLimit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Grant(ctx, "user-1", "signup_bonus"); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if _, err := svc.Grant(ctx, "user-1", "signup_bonus"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected limit reached, got %v", err)
	}

	w, _ := store.WalletByOwner(ctx, "user-1", "USD")
	if w.Available != 500 {
		t.Fatalf("second grant changed the balance: %d", w.Available)
	}

	// A different user is unaffected by the first user's limit.
	if _, err := svc.Grant(ctx, "user-2", "signup_bonus"); err != nil {
		t.Fatalf("grant for other user: %v", err)
	}
}

func TestConcurrentGrantsPayOutOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var granted int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := svc.Grant(ctx, "user-1", "signup_bonus")
			if err != nil {
				if !errors.Is(err, ErrLimitReached) {
					t.Errorf("grant: %v", err)
				}
				return
			}
			mu.Lock()
			granted += entry.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	if granted != 500 {
		t.Fatalf("expected exactly one grant of 500 across concurrent calls, got %d", granted)
	}
	w, _ := store.WalletByOwner(ctx, "user-1", "USD")
	if w.Available != 500 {
		t.Fatalf("wallet available = %d, want 500", w.Available)
	}
}

func TestGrantUnknownAction(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Grant(context.Background(), "user-1", "no_such_action"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
