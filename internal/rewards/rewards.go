package rewards

import (
	"context"

	"github.com/gigpay/gigpay/internal/ledger"
)

// ErrLimitReached indicates the user already received this reward the maximum
// number of times. It is the ledger's cap sentinel so errors.Is matches
// whichever package the caller imported.
var ErrLimitReached = ledger.ErrLimitReached

// Config describes an action-based reward: a one-off amount credited when a
// user performs the action, outside the referral accrual path.
type Config struct {
	Action     string
	Amount     int64
	Points     int64
	MaxPerUser int64 // 0 means unlimited
	Conditions map[string]string
}

// Store is the read-only reward configuration source.
type Store interface {
	// Get returns the config for an action; ok is false when the action has no
	// reward attached.
	Get(ctx context.Context, action string) (Config, bool, error)
}

type memoryStore struct {
	configs map[string]Config
}

// NewMemoryStore builds a static store from the given configs.
func NewMemoryStore(configs []Config) Store {
	byAction := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		byAction[cfg.Action] = cfg
	}
	return &memoryStore{configs: byAction}
}

func (s *memoryStore) Get(_ context.Context, action string) (Config, bool, error) {
	cfg, ok := s.configs[action]
	return cfg, ok, nil
}

// DefaultConfigs are the built-in action rewards used when no database is
// configured.
var DefaultConfigs = []Config{
	{Action: "signup_bonus", Amount: 500, Points: 50, MaxPerUser: 1},
	{Action: "profile_completed", Amount: 100, Points: 10, MaxPerUser: 1},
	{Action: "first_job_completed", Amount: 1_000, Points: 100, MaxPerUser: 1},
}
