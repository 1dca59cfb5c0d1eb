package models

import "time"

// ClaimState is the lifecycle state of a resource claim.
type ClaimState string

const (
	// ClaimHeld means the resources are reserved but the migration has not
	// yet been confirmed on the destination.
	ClaimHeld ClaimState = "held"
	// ClaimCommitted means the migration succeeded and the reservation is
	// now permanent usage on the node.
	ClaimCommitted ClaimState = "committed"
	// ClaimReleased means the reservation was rolled back and the capacity
	// returned to the node.
	ClaimReleased ClaimState = "released"
)

// Claim reserves a slice of a node's capacity for one migration so two
// in-flight migrations cannot double-book the same destination. Held and
// committed claims both count against the node's free capacity; released
// claims do not.
type Claim struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	MigrationID string     `gorm:"size:32;not null;index"`
	NodeID      string     `gorm:"size:64;not null;index"`
	VCPUs       int        `gorm:"column:vcpus;not null"`
	MemoryMB    int64      `gorm:"not null"`
	DiskGB      int64      `gorm:"not null"`
	State       ClaimState `gorm:"size:16;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
