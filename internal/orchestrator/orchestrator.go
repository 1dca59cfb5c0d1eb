// Package orchestrator drives live migrations end to end: destination
// resolution, the destination resource claim, remote execution on the
// source and destination agents, rollback on failure, and best-effort
// storage teardown on success.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/corbins/gantry/internal/agent"
	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/models"
	"github.com/corbins/gantry/internal/notify"
	"github.com/corbins/gantry/internal/placement"
	"github.com/corbins/gantry/internal/volumes"
)

var (
	// ErrConflictingMigration means another non-terminal migration already
	// exists for the instance. No record is created.
	ErrConflictingMigration = errors.New("conflicting migration")

	// ErrNotMigratable means the instance is missing or not in a runtime
	// state that admits live migration.
	ErrNotMigratable = errors.New("instance not migratable")

	// ErrCancelNotAllowed means the migration has progressed past the point
	// where cancellation is supported (running or later, or terminal).
	ErrCancelNotAllowed = errors.New("cancel not allowed")
)

// BlockMigration request values. Auto infers disk copy from the instance's
// storage backing.
const (
	BlockAuto  = "auto"
	BlockTrue  = "true"
	BlockFalse = "false"
)

// Orchestrator owns all MigrationRecord status transitions. One Orchestrator
// serves many concurrent migrations; each migration is driven by a single
// goroutine, so per-migration state has one writer.
type Orchestrator struct {
	db       *gorm.DB
	claims   *claims.Manager
	selector placement.Selector
	agents   agent.Registry
	vols     *volumes.Coordinator
	sink     notify.Sink
}

// New wires an Orchestrator from its collaborators. sink may be nil to
// disable notifications.
func New(db *gorm.DB, cm *claims.Manager, sel placement.Selector, reg agent.Registry, vc *volumes.Coordinator, sink notify.Sink) (*Orchestrator, error) {
	if db == nil {
		return nil, fmt.Errorf("orchestrator: db is required")
	}
	if cm == nil {
		return nil, fmt.Errorf("orchestrator: claim manager is required")
	}
	if sel == nil {
		return nil, fmt.Errorf("orchestrator: placement selector is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("orchestrator: agent registry is required")
	}
	if vc == nil {
		return nil, fmt.Errorf("orchestrator: volume coordinator is required")
	}
	return &Orchestrator{db: db, claims: cm, selector: sel, agents: reg, vols: vc, sink: sink}, nil
}

// StartOpts holds parameters for starting a migration.
type StartOpts struct {
	InstanceID string
	// TargetHost pins the destination; empty means auto-select. A bad
	// explicit host surfaces as a claim failure, not a validation error.
	TargetHost string
	// BlockMigration is "true", "false" or "auto" (the default).
	BlockMigration string
	// Wait blocks until the migration reaches a terminal status instead of
	// returning as soon as the record is queued.
	Wait bool
}

// Start validates preconditions, persists a queued MigrationRecord and
// drives it. With Wait false the returned record is the freshly queued one
// and the caller polls for progress; with Wait true the record is terminal.
func (o *Orchestrator) Start(ctx context.Context, opts StartOpts) (*models.Migration, error) {
	if opts.InstanceID == "" {
		return nil, fmt.Errorf("orchestrator: instance id is required")
	}
	block := opts.BlockMigration
	if block == "" {
		block = BlockAuto
	}
	if block != BlockAuto && block != BlockTrue && block != BlockFalse {
		return nil, fmt.Errorf("orchestrator: block_migration must be true, false or auto, got %q", opts.BlockMigration)
	}

	var inst models.Instance
	result := o.db.WithContext(ctx).Where("id = ?", opts.InstanceID).Limit(1).Find(&inst)
	if result.Error != nil {
		return nil, fmt.Errorf("orchestrator: load instance %s: %w", opts.InstanceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("orchestrator: instance %s not found: %w", opts.InstanceID, ErrNotMigratable)
	}
	if inst.Status != models.InstanceActive {
		return nil, fmt.Errorf("orchestrator: instance %s is %s: %w", inst.ID, inst.Status, ErrNotMigratable)
	}

	blockMigration := block == BlockTrue
	if block == BlockAuto {
		blockMigration = !inst.SharedStorage
	}

	mig := models.Migration{
		ID:             newMigrationID(),
		InstanceID:     inst.ID,
		SourceCompute:  inst.Host,
		SourceNode:     inst.Node,
		Status:         models.StatusQueued,
		BlockMigration: blockMigration,
	}

	// The instance row is locked for the transaction so two concurrent
	// Starts serialize on the active-migration count before either inserts;
	// without the lock a repeatable-read backend lets both count zero.
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Instance
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", inst.ID).Limit(1).Find(&locked)
		if result.Error != nil {
			return fmt.Errorf("orchestrator: lock instance %s: %w", inst.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("orchestrator: instance %s not found: %w", inst.ID, ErrNotMigratable)
		}

		var active int64
		err := tx.Model(&models.Migration{}).
			Where("instance_id = ? AND status NOT IN ?", inst.ID, terminalStatuses()).
			Count(&active).Error
		if err != nil {
			return fmt.Errorf("orchestrator: count active migrations for %s: %w", inst.ID, err)
		}
		if active > 0 {
			return fmt.Errorf("orchestrator: instance %s already has an active migration: %w", inst.ID, ErrConflictingMigration)
		}
		if err := tx.Create(&mig).Error; err != nil {
			return fmt.Errorf("orchestrator: create migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Wait {
		o.run(ctx, &mig, &inst, opts.TargetHost)
		return o.Get(ctx, mig.ID)
	}

	// The driving goroutine mutates its record as it transitions; the caller
	// gets its own snapshot of the queued state and polls Get for progress.
	migCopy := mig
	instCopy := inst
	go o.run(context.WithoutCancel(ctx), &migCopy, &instCopy, opts.TargetHost)
	return &mig, nil
}

// Cancel aborts a migration that has not started running. Any held claim is
// released by the driving goroutine when it observes the cancellation.
func (o *Orchestrator) Cancel(ctx context.Context, migrationID string) error {
	if migrationID == "" {
		return fmt.Errorf("orchestrator: migration id is required")
	}
	mig, err := o.Get(ctx, migrationID)
	if err != nil {
		return err
	}

	for _, from := range []models.MigrationStatus{models.StatusQueued, models.StatusPreparing} {
		if o.transition(ctx, mig, from, models.StatusCancelled, nil) {
			return nil
		}
	}
	return fmt.Errorf("orchestrator: migration %s is %s: %w", migrationID, mig.Status, ErrCancelNotAllowed)
}

// Get returns one migration record by id.
func (o *Orchestrator) Get(ctx context.Context, migrationID string) (*models.Migration, error) {
	var mig models.Migration
	result := o.db.WithContext(ctx).Where("id = ?", migrationID).Limit(1).Find(&mig)
	if result.Error != nil {
		return nil, fmt.Errorf("orchestrator: load migration %s: %w", migrationID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("orchestrator: migration %s: %w", migrationID, gorm.ErrRecordNotFound)
	}
	return &mig, nil
}

// List returns migration records, newest first, optionally filtered by
// instance.
func (o *Orchestrator) List(ctx context.Context, instanceID string) ([]models.Migration, error) {
	q := o.db.WithContext(ctx).Model(&models.Migration{}).Order("created_at DESC, id DESC")
	if instanceID != "" {
		q = q.Where("instance_id = ?", instanceID)
	}
	var migs []models.Migration
	if err := q.Find(&migs).Error; err != nil {
		return nil, fmt.Errorf("orchestrator: list migrations: %w", err)
	}
	return migs, nil
}

func terminalStatuses() []models.MigrationStatus {
	return []models.MigrationStatus{models.StatusCompleted, models.StatusError, models.StatusCancelled}
}

// newMigrationID returns a fresh opaque migration id.
func newMigrationID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("orchestrator: read random: %v", err))
	}
	return "mg-" + hex.EncodeToString(b[:])
}
