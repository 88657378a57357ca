package domain

import "time"

// TaskStatus is the state of a verification task.
type TaskStatus string

// TaskStatus values. A DONE task is inert.
const (
	TaskPending TaskStatus = "PENDING"
	TaskDone    TaskStatus = "DONE"
)

// VerificationTask schedules the outcome check of one signal.
// Exactly one task exists per signal; it is created together with the signal.
type VerificationTask struct {
	SignalID      string
	VerifyAt      time.Time
	Status        TaskStatus
	Attempts      int        // checks performed so far
	LastAttemptAt *time.Time // time of the latest check, nil before the first
}

// IsDue reports whether the task should be checked at now.
func (t *VerificationTask) IsDue(now time.Time) bool {
	return t.Status == TaskPending && !now.Before(t.VerifyAt)
}

// Clone returns a deep copy.
func (t *VerificationTask) Clone() *VerificationTask {
	c := *t
	if t.LastAttemptAt != nil {
		at := *t.LastAttemptAt
		c.LastAttemptAt = &at
	}
	return &c
}
