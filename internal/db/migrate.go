package db

import (
	"fmt"

	"github.com/corbins/gantry/internal/config"
	"github.com/corbins/gantry/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Host{},
		&models.Instance{},
		&models.VolumeAttachment{},
		&models.Migration{},
		&models.Claim{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedHosts upserts Host rows from configuration. Hosts removed from the
// config are not deleted; they are left in place so existing claims keep a
// referent, but can be deactivated by hand.
func SeedHosts(db *gorm.DB, hosts []config.HostConfig) error {
	for _, hc := range hosts {
		host := models.Host{
			Name:     hc.Name,
			Node:     hc.Node,
			VCPUs:    hc.VCPUs,
			MemoryMB: hc.MemoryMB,
			DiskGB:   hc.DiskGB,
			Active:   true,
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"node", "vcpus", "memory_mb", "disk_gb", "active"}),
		}).Create(&host)
		if result.Error != nil {
			return fmt.Errorf("db: seed host %q: %w", hc.Name, result.Error)
		}
	}
	return nil
}
