package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gigpay/gigpay/internal/ledger"
	"github.com/gigpay/gigpay/internal/notification"
)

// Service grants action-based rewards through the ledger. Referral accrual has
// its own engine; this path covers everything else the config store describes.
type Service struct {
	store    Store
	ledger   ledger.Store
	notifier notification.Notifier
	logger   *slog.Logger
	currency string
}

// NewService builds the reward granting service.
func NewService(store Store, ledgerStore ledger.Store, notifier notification.Notifier, logger *slog.Logger, currency string) *Service {
	return &Service{store: store, ledger: ledgerStore, notifier: notifier, logger: logger, currency: currency}
}

// Grant credits the configured reward for an action to the user's wallet,
// honoring the per-user limit. Unknown actions fail ErrNotFound.
func (s *Service) Grant(ctx context.Context, userID, action string) (ledger.Entry, error) {
	cfg, ok, err := s.store.Get(ctx, action)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !ok {
		return ledger.Entry{}, fmt.Errorf("reward for action %q: %w", action, ledger.ErrNotFound)
	}

	w, err := s.ledger.GetOrCreateWallet(ctx, userID, s.currency)
	if err != nil {
		return ledger.Entry{}, err
	}

	// The per-user limit is enforced inside the store's critical section, so
	// concurrent grants for the same action cannot both slip under the cap.
	entry, _, err := s.ledger.ApplyEntryCapped(ctx, ledger.ApplyInput{
		WalletID:  w.ID,
		Amount:    cfg.Amount,
		Kind:      ledger.KindCredit,
		Reference: ledger.Reference{Kind: ledger.RefReward, ID: action},
		Metadata:  map[string]string{"action": action, "points": fmt.Sprintf("%d", cfg.Points)},
	}, cfg.MaxPerUser)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			return ledger.Entry{}, fmt.Errorf("action %q: %w", action, err)
		}
		return ledger.Entry{}, err
	}

	notification.Dispatch(s.notifier, s.logger, userID, notification.TemplateRewardGranted, map[string]any{
		"action": action, "amount": cfg.Amount, "points": cfg.Points,
	})
	return entry, nil
}
