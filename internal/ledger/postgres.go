package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists wallets and entries in PostgreSQL. Every mutation runs
// in one transaction with the wallet row(s) locked FOR UPDATE, which gives the
// per-wallet exclusion the balance rules rely on.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed ledger store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, owner_id, currency, available, pending, escrow, total_earned, total_withdrawn, created_at, updated_at`

func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, ownerID, currency string) (Wallet, error) {
	if ownerID == "" || currency == "" {
		return Wallet{}, fmt.Errorf("owner id and currency are required")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, owner_id, currency, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (owner_id, currency) DO NOTHING`, uuid.New(), ownerID, currency, now)
	if err != nil {
		return Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return s.WalletByOwner(ctx, ownerID, currency)
}

func (s *PostgresStore) Wallet(ctx context.Context, walletID string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	return w, err
}

func (s *PostgresStore) WalletByOwner(ctx context.Context, ownerID, currency string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND currency = $2`, ownerID, currency)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet for owner %s (%s): %w", ownerID, currency, ErrNotFound)
	}
	return w, err
}

func (s *PostgresStore) ApplyEntry(ctx context.Context, input ApplyInput) (Entry, Wallet, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entry, w, err := applyInTx(ctx, tx, input)
	if err != nil {
		return Entry{}, Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, Wallet{}, err
	}
	return entry, w, nil
}

func (s *PostgresStore) ApplyEntryCapped(ctx context.Context, input ApplyInput, maxOccurrences int64) (Entry, Wallet, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if maxOccurrences > 0 {
		// The wallet lock serializes concurrent counts of the same reference.
		if _, err := lockWallet(ctx, tx, input.WalletID); err != nil {
			return Entry{}, Wallet{}, err
		}
		var count int64
		err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries
	        WHERE wallet_id = $1 AND ref_kind = $2 AND ref_id = $3 AND status = $4`,
			input.WalletID, input.Reference.Kind, input.Reference.ID, StatusCompleted).Scan(&count)
		if err != nil {
			return Entry{}, Wallet{}, err
		}
		if count >= maxOccurrences {
			return Entry{}, Wallet{}, fmt.Errorf("reference %s/%s posted %d times: %w",
				input.Reference.Kind, input.Reference.ID, count, ErrLimitReached)
		}
	}

	entry, w, err := applyInTx(ctx, tx, input)
	if err != nil {
		return Entry{}, Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, Wallet{}, err
	}
	return entry, w, nil
}

func (s *PostgresStore) ClaimAccrued(ctx context.Context, walletID string, totalAccrued int64, ref Reference, metadata map[string]string) (Entry, Wallet, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock the wallet first so the claimed-sum read and the credit are one unit.
	if _, err := lockWallet(ctx, tx, walletID); err != nil {
		return Entry{}, Wallet{}, err
	}

	var claimed int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
        WHERE wallet_id = $1 AND kind = $2 AND status = $3 AND ref_kind = $4`,
		walletID, KindCredit, StatusCompleted, ref.Kind).Scan(&claimed)
	if err != nil {
		return Entry{}, Wallet{}, err
	}

	claimable := totalAccrued - claimed
	if claimable <= 0 {
		return Entry{}, Wallet{}, fmt.Errorf("accrued %d, already claimed %d: %w", totalAccrued, claimed, ErrNothingToClaim)
	}

	entry, w, err := applyInTx(ctx, tx, ApplyInput{
		WalletID:  walletID,
		Amount:    claimable,
		Kind:      KindCredit,
		Reference: ref,
		Metadata:  metadata,
	})
	if err != nil {
		return Entry{}, Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, Wallet{}, err
	}
	return entry, w, nil
}

func (s *PostgresStore) Entries(ctx context.Context, walletID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, amount, kind, status, ref_kind, ref_id, metadata, created_at
        FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at, id`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) EntriesByReference(ctx context.Context, walletID, refKind string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, amount, kind, status, ref_kind, ref_id, metadata, created_at
        FROM ledger_entries WHERE wallet_id = $1 AND ref_kind = $2 AND status = $3 ORDER BY created_at, id`,
		walletID, refKind, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) Reconcile(ctx context.Context, walletID string) error {
	w, err := s.Wallet(ctx, walletID)
	if err != nil {
		return err
	}
	entries, err := s.Entries(ctx, walletID)
	if err != nil {
		return err
	}

	available, escrow, earned, withdrawn := replay(entries)
	if available != w.Available || escrow != w.Escrow || earned != w.TotalEarned || withdrawn != w.TotalWithdrawn {
		return fmt.Errorf("wallet %s out of balance: replayed available=%d escrow=%d earned=%d withdrawn=%d, stored available=%d escrow=%d earned=%d withdrawn=%d",
			walletID, available, escrow, earned, withdrawn, w.Available, w.Escrow, w.TotalEarned, w.TotalWithdrawn)
	}
	return nil
}

// applyInTx locks the involved wallet rows, applies the balance effect, writes
// the updated balances back, and appends the entry rows. The returned wallet is
// the payer's post-update state from inside the transaction. RELEASE locks both
// wallets in sorted id order to avoid deadlock between concurrent releases.
func applyInTx(ctx context.Context, tx pgx.Tx, input ApplyInput) (Entry, Wallet, error) {
	lockOrder := []string{input.WalletID}
	if input.Kind == KindRelease {
		if input.PayeeWalletID == "" {
			return Entry{}, Wallet{}, fmt.Errorf("release requires a payee wallet")
		}
		if input.PayeeWalletID < input.WalletID {
			lockOrder = []string{input.PayeeWalletID, input.WalletID}
		} else {
			lockOrder = append(lockOrder, input.PayeeWalletID)
		}
	}

	locked := make(map[string]*Wallet, len(lockOrder))
	for _, id := range lockOrder {
		w, err := lockWallet(ctx, tx, id)
		if err != nil {
			return Entry{}, Wallet{}, err
		}
		locked[id] = w
	}

	w := locked[input.WalletID]
	payee := locked[input.PayeeWalletID]
	if err := applyEffect(w, payee, input.Amount, input.Kind); err != nil {
		return Entry{}, Wallet{}, err
	}

	now := time.Now().UTC()
	w.UpdatedAt = now
	if err := updateWallet(ctx, tx, w); err != nil {
		return Entry{}, Wallet{}, err
	}

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
	if err := insertEntry(ctx, tx, entry); err != nil {
		return Entry{}, Wallet{}, err
	}

	if payee != nil {
		payee.UpdatedAt = now
		if err := updateWallet(ctx, tx, payee); err != nil {
			return Entry{}, Wallet{}, err
		}
		if err := insertEntry(ctx, tx, Entry{
			ID:        uuid.NewString(),
			WalletID:  payee.ID,
			Amount:    input.Amount,
			Kind:      KindCredit,
			Status:    StatusCompleted,
			Reference: input.Reference,
			Metadata:  copyMetadata(input.Metadata),
			CreatedAt: now,
		}); err != nil {
			return Entry{}, Wallet{}, err
		}
	}

	return entry, *w, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, walletID string) (*Wallet, error) {
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func updateWallet(ctx context.Context, tx pgx.Tx, w *Wallet) error {
	_, err := tx.Exec(ctx, `UPDATE wallets
        SET available = $2, pending = $3, escrow = $4, total_earned = $5, total_withdrawn = $6, updated_at = $7
        WHERE id = $1`, w.ID, w.Available, w.Pending, w.Escrow, w.TotalEarned, w.TotalWithdrawn, w.UpdatedAt)
	return err
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `INSERT INTO ledger_entries (id, wallet_id, amount, kind, status, ref_kind, ref_id, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WalletID, e.Amount, e.Kind, e.Status, e.Reference.Kind, e.Reference.ID, e.Metadata, e.CreatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.Available, &w.Pending, &w.Escrow,
		&w.TotalEarned, &w.TotalWithdrawn, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Kind, &e.Status,
			&e.Reference.Kind, &e.Reference.ID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
