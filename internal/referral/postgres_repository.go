package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigpay/gigpay/internal/ledger"
)

// PostgresRepository stores referrals in PostgreSQL. A unique index on
// referee_id enforces one referral per referee; the completion transition is a
// guarded UPDATE.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const referralColumns = `id, referrer_id, referee_id, status, reward_amount, action, created_at, completed_at`

func (r *PostgresRepository) Create(ctx context.Context, ref Referral) error {
	_, err := r.db.Exec(ctx, `INSERT INTO referrals (id, referrer_id, referee_id, status, reward_amount, action, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ref.ID, ref.ReferrerID, ref.RefereeID, ref.Status, ref.RewardAmount, ref.Action, ref.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("referee %s: %w", ref.RefereeID, ErrRefereeAlreadyReferred)
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Referral, error) {
	row := r.db.QueryRow(ctx, `SELECT `+referralColumns+` FROM referrals WHERE id = $1`, id)
	ref, err := scanReferral(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Referral{}, fmt.Errorf("referral %s: %w", id, ledger.ErrNotFound)
	}
	return ref, err
}

func (r *PostgresRepository) Complete(ctx context.Context, id, action string) (Referral, error) {
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE referrals
        SET status = $3, action = $4, completed_at = $5
        WHERE id = $1 AND status = $2
        RETURNING `+referralColumns, id, StatusPending, StatusCompleted, action, now)
	ref, err := scanReferral(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := r.Get(ctx, id); lookupErr != nil {
			return Referral{}, lookupErr
		}
		return Referral{}, fmt.Errorf("referral %s: %w", id, ledger.ErrAlreadyCompleted)
	}
	return ref, err
}

func (r *PostgresRepository) CountCompleted(ctx context.Context, referrerID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND status = $2`,
		referrerID, StatusCompleted).Scan(&count)
	return count, err
}

func scanReferral(row pgx.Row) (Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.RefereeID, &ref.Status, &ref.RewardAmount,
		&ref.Action, &ref.CreatedAt, &ref.CompletedAt)
	if err != nil {
		return Referral{}, err
	}
	ref.CreatedAt = ref.CreatedAt.UTC()
	return ref, nil
}
