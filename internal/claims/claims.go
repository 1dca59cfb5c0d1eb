// Package claims tracks resource claims against node inventory. A claim
// reserves part of a node's capacity for one migration; held and committed
// claims both count against free capacity, so two concurrent migrations can
// never jointly overbook a node.
package claims

import (
	"context"
	"errors"
	"fmt"

	"github.com/corbins/gantry/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrResourcesUnavailable means the node cannot satisfy the requested
	// resource vector. Callers treat this as the single failure funnel for
	// capacity problems.
	ErrResourcesUnavailable = errors.New("resources unavailable")

	// ErrInvalidClaimState means a lifecycle rule was violated, e.g.
	// committing a released claim. This is an ordering bug in the caller,
	// not a capacity condition.
	ErrInvalidClaimState = errors.New("invalid claim state")
)

// Resources is the quantity vector a migration needs on its destination.
type Resources struct {
	VCPUs    int
	MemoryMB int64
	DiskGB   int64
}

// ResourcesFor returns the resource vector an instance occupies.
func ResourcesFor(inst *models.Instance) Resources {
	return Resources{VCPUs: inst.VCPUs, MemoryMB: inst.MemoryMB, DiskGB: inst.DiskGB}
}

// Manager mediates all claim state transitions. All mutation of node
// capacity accounting goes through here.
type Manager struct {
	db *gorm.DB
}

// NewManager returns a Manager backed by the given record store.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Acquire atomically reserves resources on a node for a migration. It locks
// the host row for the duration of the transaction so two concurrent
// acquisitions against the same node serialize; exactly one wins when
// capacity admits only one.
//
// Note: SQLite ignores FOR UPDATE but serializes writers at the database
// level, which preserves correctness; just lower concurrency.
func (m *Manager) Acquire(ctx context.Context, nodeID string, req Resources, migrationID string) (*models.Claim, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("claims: nodeID is required")
	}
	if migrationID == "" {
		return nil, fmt.Errorf("claims: migrationID is required")
	}

	var claim models.Claim

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host models.Host
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ? AND active = ?", nodeID, true).
			Limit(1).
			Find(&host)
		if result.Error != nil {
			return fmt.Errorf("claims: load host %s: %w", nodeID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("claims: node %s: unknown or inactive host: %w", nodeID, ErrResourcesUnavailable)
		}

		used, err := usedOn(tx, nodeID)
		if err != nil {
			return err
		}

		if used.VCPUs+req.VCPUs > host.VCPUs ||
			used.MemoryMB+req.MemoryMB > host.MemoryMB ||
			used.DiskGB+req.DiskGB > host.DiskGB {
			return fmt.Errorf("claims: node %s cannot fit %d vcpus / %d MB / %d GB: %w",
				nodeID, req.VCPUs, req.MemoryMB, req.DiskGB, ErrResourcesUnavailable)
		}

		claim = models.Claim{
			MigrationID: migrationID,
			NodeID:      nodeID,
			VCPUs:       req.VCPUs,
			MemoryMB:    req.MemoryMB,
			DiskGB:      req.DiskGB,
			State:       models.ClaimHeld,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("claims: create claim on %s: %w", nodeID, err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// Commit makes a held claim permanent. Idempotent for an already-committed
// claim; fails with ErrInvalidClaimState if the claim was released.
func (m *Manager) Commit(ctx context.Context, claim *models.Claim) error {
	if claim == nil {
		return fmt.Errorf("claims: claim is required")
	}
	return m.transition(ctx, claim, models.ClaimCommitted, models.ClaimReleased)
}

// Release returns a held claim's capacity to the node, immediately and
// synchronously: once Release returns, a subsequent Acquire observes the
// freed capacity. Idempotent for an already-released claim; fails with
// ErrInvalidClaimState if the claim was committed.
func (m *Manager) Release(ctx context.Context, claim *models.Claim) error {
	if claim == nil {
		return fmt.Errorf("claims: claim is required")
	}
	return m.transition(ctx, claim, models.ClaimReleased, models.ClaimCommitted)
}

// transition moves a claim from held to target. The target state is
// idempotent; the forbidden state (the other terminal) is a lifecycle bug.
func (m *Manager) transition(ctx context.Context, claim *models.Claim, target, forbidden models.ClaimState) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Claim
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", claim.ID).
			Limit(1).
			Find(&current)
		if result.Error != nil {
			return fmt.Errorf("claims: load claim %d: %w", claim.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("claims: claim %d not found: %w", claim.ID, ErrInvalidClaimState)
		}

		switch current.State {
		case target:
			return nil
		case forbidden:
			return fmt.Errorf("claims: claim %d is %s, cannot move to %s: %w",
				claim.ID, current.State, target, ErrInvalidClaimState)
		}

		if err := tx.Model(&models.Claim{}).Where("id = ?", claim.ID).
			Update("state", target).Error; err != nil {
			return fmt.Errorf("claims: update claim %d: %w", claim.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	claim.State = target
	return nil
}

// FreeOn reports the free capacity remaining on a node.
func (m *Manager) FreeOn(ctx context.Context, nodeID string) (Resources, error) {
	var host models.Host
	result := m.db.WithContext(ctx).Where("name = ?", nodeID).Limit(1).Find(&host)
	if result.Error != nil {
		return Resources{}, fmt.Errorf("claims: load host %s: %w", nodeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return Resources{}, fmt.Errorf("claims: unknown host %s: %w", nodeID, gorm.ErrRecordNotFound)
	}
	used, err := usedOn(m.db.WithContext(ctx), nodeID)
	if err != nil {
		return Resources{}, err
	}
	return Resources{
		VCPUs:    host.VCPUs - used.VCPUs,
		MemoryMB: host.MemoryMB - used.MemoryMB,
		DiskGB:   host.DiskGB - used.DiskGB,
	}, nil
}

// usedOn sums the held and committed claims against a node.
func usedOn(tx *gorm.DB, nodeID string) (Resources, error) {
	type totals struct {
		VCPUs    int   `gorm:"column:vcpus"`
		MemoryMB int64 `gorm:"column:memory_mb"`
		DiskGB   int64 `gorm:"column:disk_gb"`
	}
	var t totals
	err := tx.Model(&models.Claim{}).
		Select("COALESCE(SUM(vcpus), 0) AS vcpus, COALESCE(SUM(memory_mb), 0) AS memory_mb, COALESCE(SUM(disk_gb), 0) AS disk_gb").
		Where("node_id = ? AND state IN ?", nodeID, []models.ClaimState{models.ClaimHeld, models.ClaimCommitted}).
		Scan(&t).Error
	if err != nil {
		return Resources{}, fmt.Errorf("claims: sum claims on %s: %w", nodeID, err)
	}
	return Resources{VCPUs: t.VCPUs, MemoryMB: t.MemoryMB, DiskGB: t.DiskGB}, nil
}
