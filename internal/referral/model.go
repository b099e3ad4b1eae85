package referral

import "time"

// Status is the lifecycle state of a referral.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Referral tracks a referrer/referee relationship. It is created once per
// referee during signup processing and completes exactly once, when the referee
// performs a qualifying action.
type Referral struct {
	ID           string
	ReferrerID   string
	RefereeID    string
	Status       Status
	RewardAmount int64
	Action       string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
