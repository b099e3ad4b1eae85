package escrow

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// HoldState is the lifecycle state of an escrow hold. RELEASED and REFUNDED are
// terminal.
type HoldState string

const (
	HoldHeld     HoldState = "held"
	HoldReleased HoldState = "released"
	HoldRefunded HoldState = "refunded"
)

// Job is the unit of work money moves around. Only the award/complete/cancel
// transitions live here; listing, search, and the rest of job management belong
// to other services.
type Job struct {
	ID           string
	ClientID     string
	FreelancerID string
	Title        string
	Budget       int64
	Currency     string
	Status       JobStatus
	CancelReason string
	CreatedAt    time.Time
	AwardedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
}

// Hold earmarks funds for a job outside either party's spendable balance. It is
// created only when an award is paid immediately from the client's wallet.
type Hold struct {
	ID           string
	JobID        string
	ClientID     string
	FreelancerID string
	Amount       int64
	State        HoldState
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}
