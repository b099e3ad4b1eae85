package rewards

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads reward configuration from PostgreSQL. Rows are managed by
// an operations tool; this side only reads.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed config store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, action string) (Config, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT action, amount, points, max_per_user, conditions
        FROM reward_configs WHERE action = $1`, action)

	var cfg Config
	err := row.Scan(&cfg.Action, &cfg.Amount, &cfg.Points, &cfg.MaxPerUser, &cfg.Conditions)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}
