package models

import "time"

// Instance statuses. Only active instances are migratable.
const (
	InstanceActive  = "active"
	InstanceStopped = "stopped"
	InstanceErrored = "error"
)

// Instance is a running workload placed on a host. The flavor fields are the
// resource vector a destination must be able to claim before the workload
// can move there.
type Instance struct {
	ID            string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"size:128"`
	Host          string `gorm:"size:64;not null;index"`
	Node          string `gorm:"size:64;not null"`
	Status        string `gorm:"size:16;not null;index"`
	VCPUs         int    `gorm:"column:vcpus;not null"`
	MemoryMB      int64  `gorm:"not null"`
	DiskGB        int64  `gorm:"not null"`
	SharedStorage bool
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Attachments []VolumeAttachment `gorm:"foreignKey:InstanceID"`
}
