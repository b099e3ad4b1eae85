package wallet

import (
	"context"

	"github.com/google/uuid"

	"github.com/gigpay/gigpay/internal/ledger"
)

// Service exposes read and withdrawal operations over the ledger store. All
// balance math happens inside the store; this layer only shapes inputs.
type Service struct {
	ledger   ledger.Store
	currency string
}

// NewService builds a wallet service for the given default currency.
func NewService(store ledger.Store, currency string) *Service {
	return &Service{ledger: store, currency: currency}
}

// GetOrCreate returns the owner's wallet, creating it with zero balances on
// first use.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.ledger.GetOrCreateWallet(ctx, ownerID, s.currency)
}

// Balance returns the owner's wallet without creating one.
func (s *Service) Balance(ctx context.Context, ownerID string) (ledger.Wallet, error) {
	return s.ledger.WalletByOwner(ctx, ownerID, s.currency)
}

// Statement lists the owner's ledger entries, oldest first.
func (s *Service) Statement(ctx context.Context, ownerID string) ([]ledger.Entry, error) {
	w, err := s.ledger.WalletByOwner(ctx, ownerID, s.currency)
	if err != nil {
		return nil, err
	}
	return s.ledger.Entries(ctx, w.ID)
}

// WithdrawResult describes the ledger outcome of a withdrawal.
type WithdrawResult struct {
	Entry  ledger.Entry
	Wallet ledger.Wallet
}

// Withdraw debits the available balance and records the amount as withdrawn.
// Settlement to an external rail happens downstream; only the ledger effect is
// handled here.
func (s *Service) Withdraw(ctx context.Context, ownerID string, amount int64) (WithdrawResult, error) {
	w, err := s.ledger.WalletByOwner(ctx, ownerID, s.currency)
	if err != nil {
		return WithdrawResult{}, err
	}

	// The returned wallet comes from inside the posting's critical section, so
	// the reported balance cannot include a later concurrent mutation.
	entry, updated, err := s.ledger.ApplyEntry(ctx, ledger.ApplyInput{
		WalletID:  w.ID,
		Amount:    amount,
		Kind:      ledger.KindWithdrawal,
		Reference: ledger.Reference{Kind: ledger.RefWithdrawal, ID: uuid.NewString()},
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return WithdrawResult{Entry: entry, Wallet: updated}, nil
}
