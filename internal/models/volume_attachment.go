package models

import "time"

// VolumeAttachment links an instance to a unit of persistent storage in the
// external volume service. Migration never creates or destroys these; it
// only triggers detach-on-source during teardown.
type VolumeAttachment struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	InstanceID   string `gorm:"size:64;not null;index"`
	VolumeID     string `gorm:"size:64;not null"`
	AttachmentID string `gorm:"size:64;not null"`
	BootIndex    int    `gorm:"default:-1"`
	CreatedAt    time.Time
}
