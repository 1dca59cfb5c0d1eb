package models

import "time"

// MigrationStatus is the closed set of states a migration moves through.
// Transitions are driven exclusively by the orchestrator; see
// orchestrator.CanTransition for the legal edges.
type MigrationStatus string

const (
	StatusQueued        MigrationStatus = "queued"
	StatusPreparing     MigrationStatus = "preparing"
	StatusRunning       MigrationStatus = "running"
	StatusPostMigrating MigrationStatus = "post_migrating"
	StatusCompleted     MigrationStatus = "completed"
	StatusError         MigrationStatus = "error"
	StatusCancelled     MigrationStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s MigrationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the seven known statuses.
func (s MigrationStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusPreparing, StatusRunning, StatusPostMigrating,
		StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Migration records one live-migration attempt for an instance.
//
// DestCompute and DestNode are nil until the migration succeeds; on any
// failure they are left (or reset to) nil, so callers cannot tell a failed
// destination attempt from no attempt at all. The attempted host survives
// only in the failure notification.
type Migration struct {
	ID             string          `gorm:"primaryKey;size:32"`
	InstanceID     string          `gorm:"size:64;not null;index"`
	SourceCompute  string          `gorm:"size:64;not null"`
	SourceNode     string          `gorm:"size:64;not null"`
	DestCompute    *string         `gorm:"size:64"`
	DestNode       *string         `gorm:"size:64"`
	Status         MigrationStatus `gorm:"size:16;not null;index"`
	BlockMigration bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
