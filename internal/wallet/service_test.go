package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/gigpay/gigpay/internal/ledger"
)

func TestServiceWithdraw(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := NewService(store, "USD")

	w, err := svc.GetOrCreate(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, _, err := store.ApplyEntry(ctx, ledger.ApplyInput{WalletID: w.ID, Amount: 5_000, Kind: ledger.KindCredit}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	res, err := svc.Withdraw(ctx, "owner-1", 2_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Wallet.Available != 3_000 || res.Wallet.TotalWithdrawn != 2_000 {
		t.Fatalf("unexpected wallet after withdraw: %+v", res.Wallet)
	}
	if res.Entry.Kind != ledger.KindWithdrawal {
		t.Fatalf("unexpected entry kind %s", res.Entry.Kind)
	}

	_, err = svc.Withdraw(ctx, "owner-1", 10_000)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	var ife *ledger.InsufficientFundsError
	if !errors.As(err, &ife) || ife.Shortfall() != 7_000 {
		t.Fatalf("expected shortfall 7000, got %v", err)
	}
}

func TestServiceStatement(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	svc := NewService(store, "USD")

	if _, err := svc.Statement(ctx, "nobody"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	w, _ := svc.GetOrCreate(ctx, "owner-1")
	for i := 0; i < 2; i++ {
		if _, _, err := store.ApplyEntry(ctx, ledger.ApplyInput{WalletID: w.ID, Amount: 100, Kind: ledger.KindCredit}); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	entries, err := svc.Statement(ctx, "owner-1")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}
