package models

import "time"

// Host is a compute host in the cluster and its node's total capacity.
// Free capacity is capacity minus the sum of held and committed claims,
// computed by the claims package; nothing is cached here.
type Host struct {
	Name      string `gorm:"primaryKey;size:64"`
	Node      string `gorm:"size:64;not null"`
	VCPUs     int    `gorm:"column:vcpus;not null"`
	MemoryMB  int64  `gorm:"not null"`
	DiskGB    int64  `gorm:"not null"`
	Active    bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
