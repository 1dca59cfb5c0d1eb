package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/corbins/gantry/internal/agent"
	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/models"
	"github.com/corbins/gantry/internal/notify"
	"github.com/corbins/gantry/internal/placement"
)

// legalTransitions are the edges of the migration state machine. Everything
// else is rejected at transition time.
var legalTransitions = map[models.MigrationStatus][]models.MigrationStatus{
	models.StatusQueued:        {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:     {models.StatusRunning, models.StatusError, models.StatusCancelled},
	models.StatusRunning:       {models.StatusPostMigrating, models.StatusError},
	models.StatusPostMigrating: {models.StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to models.MigrationStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// run drives one migration from queued to a terminal status. It is the only
// writer of this migration's record after creation, except for the
// compare-and-swap cancellation path, which it detects through failed
// transitions.
func (o *Orchestrator) run(ctx context.Context, mig *models.Migration, inst *models.Instance, targetHost string) {
	if !o.transition(ctx, mig, models.StatusQueued, models.StatusPreparing, nil) {
		// Cancelled before we picked it up; nothing to roll back.
		return
	}

	claim, dest, err := o.resolveAndClaim(ctx, mig, inst, targetHost)
	if err != nil {
		o.fail(ctx, mig, models.StatusPreparing, err)
		return
	}

	if !o.transition(ctx, mig, models.StatusPreparing, models.StatusRunning, nil) {
		// Cancelled while we were claiming; give the capacity back.
		o.releaseClaim(ctx, claim)
		return
	}

	if err := o.execute(ctx, mig, inst, dest); err != nil {
		o.releaseClaim(ctx, claim)
		o.fail(ctx, mig, models.StatusRunning, err)
		return
	}

	if err := o.claims.Commit(ctx, claim); err != nil {
		// Commit of a held claim only fails on a lifecycle bug or a dead
		// record store; either way the workload already moved, so surface
		// loudly but do not pretend the migration failed.
		log.Printf("orchestrator: commit claim for %s: %v", mig.ID, err)
	}

	o.transition(ctx, mig, models.StatusRunning, models.StatusPostMigrating, map[string]interface{}{
		"dest_compute": dest.Compute,
		"dest_node":    dest.Node,
	})
	mig.DestCompute = &dest.Compute
	mig.DestNode = &dest.Node

	o.relocateInstance(ctx, inst, dest)
	o.teardownStorage(ctx, mig, inst)

	o.transition(ctx, mig, models.StatusPostMigrating, models.StatusCompleted, nil)
}

// resolveAndClaim turns the requested destination (or the placement
// collaborator's candidates) into exactly one held claim. Claim denial is
// the single failure funnel for capacity problems: candidates are tried in
// order and a host is never retried.
func (o *Orchestrator) resolveAndClaim(ctx context.Context, mig *models.Migration, inst *models.Instance, targetHost string) (*models.Claim, placement.Candidate, error) {
	var cands []placement.Candidate
	if targetHost != "" {
		cands = []placement.Candidate{o.candidateFor(ctx, targetHost)}
	} else {
		var err error
		cands, err = o.selector.Select(ctx, inst, []string{inst.Host})
		if err != nil {
			return nil, placement.Candidate{}, fmt.Errorf("orchestrator: select destination: %w", err)
		}
		if len(cands) == 0 {
			return nil, placement.Candidate{}, fmt.Errorf("orchestrator: no candidate hosts for %s: %w", inst.ID, claims.ErrResourcesUnavailable)
		}
	}

	need := claims.ResourcesFor(inst)
	var lastErr error
	for _, cand := range cands {
		claim, err := o.claims.Acquire(ctx, cand.Compute, need, mig.ID)
		if err == nil {
			return claim, cand, nil
		}
		if errors.Is(err, claims.ErrResourcesUnavailable) {
			lastErr = err
			continue
		}
		return nil, placement.Candidate{}, err
	}
	return nil, placement.Candidate{}, fmt.Errorf("orchestrator: all %d candidates denied the claim: %w", len(cands), lastErr)
}

// candidateFor resolves an explicitly requested host into a candidate. An
// unknown host is passed through as-is; the claim attempt will deny it,
// keeping claim denial the one funnel for bad destinations.
func (o *Orchestrator) candidateFor(ctx context.Context, host string) placement.Candidate {
	var h models.Host
	result := o.db.WithContext(ctx).Where("name = ?", host).Limit(1).Find(&h)
	if result.Error == nil && result.RowsAffected > 0 {
		return placement.Candidate{Compute: h.Name, Node: h.Node}
	}
	return placement.Candidate{Compute: host, Node: host}
}

// execute issues the migration directive: prepare on the destination agent,
// then execute on the source agent, and waits for the terminal outcome.
func (o *Orchestrator) execute(ctx context.Context, mig *models.Migration, inst *models.Instance, dest placement.Candidate) error {
	req := agent.ExecRequest{
		MigrationID:    mig.ID,
		InstanceID:     inst.ID,
		SourceHost:     inst.Host,
		DestHost:       dest.Compute,
		BlockMigration: mig.BlockMigration,
	}

	dst, err := o.agents.Agent(dest.Compute)
	if err != nil {
		return fmt.Errorf("%v: %w", err, agent.ErrRemoteExecutionFailed)
	}
	src, err := o.agents.Agent(inst.Host)
	if err != nil {
		return fmt.Errorf("%v: %w", err, agent.ErrRemoteExecutionFailed)
	}

	if err := dst.Prepare(ctx, req); err != nil {
		return fmt.Errorf("orchestrator: prepare on %s: %w", dest.Compute, err)
	}
	if err := src.Execute(ctx, req); err != nil {
		return fmt.Errorf("orchestrator: execute on %s: %w", inst.Host, err)
	}
	return nil
}

// relocateInstance moves the instance record onto its new host.
func (o *Orchestrator) relocateInstance(ctx context.Context, inst *models.Instance, dest placement.Candidate) {
	err := o.db.WithContext(ctx).Model(&models.Instance{}).Where("id = ?", inst.ID).
		Updates(map[string]interface{}{"host": dest.Compute, "node": dest.Node}).Error
	if err != nil {
		log.Printf("orchestrator: relocate instance %s to %s: %v", inst.ID, dest.Compute, err)
		return
	}
	inst.Host = dest.Compute
	inst.Node = dest.Node
}

// teardownStorage detaches the instance's source-side volume attachments.
// The report never affects migration status; failures are forwarded to the
// notification sink only.
func (o *Orchestrator) teardownStorage(ctx context.Context, mig *models.Migration, inst *models.Instance) {
	var atts []models.VolumeAttachment
	if err := o.db.WithContext(ctx).Where("instance_id = ?", inst.ID).Order("boot_index").Find(&atts).Error; err != nil {
		log.Printf("orchestrator: list attachments for %s: %v", inst.ID, err)
		return
	}
	if len(atts) == 0 {
		return
	}

	report := o.vols.DetachAll(ctx, inst.ID, mig.SourceCompute, atts)
	if report.Failed() {
		log.Printf("orchestrator: storage teardown for %s incomplete: %s", mig.ID, report.Summary())
		notify.Publish(ctx, o.sink, notify.Event{
			MigrationID: mig.ID,
			InstanceID:  inst.ID,
			OldStatus:   string(models.StatusPostMigrating),
			NewStatus:   string(models.StatusPostMigrating),
			Detail:      "storage teardown incomplete: " + report.Summary(),
		})
	}
}

// fail rolls the migration back to the terminal error status. The
// destination fields stay null regardless of whether a destination was
// attempted; the attempted host survives only in the notification detail.
func (o *Orchestrator) fail(ctx context.Context, mig *models.Migration, from models.MigrationStatus, cause error) {
	log.Printf("orchestrator: migration %s failed: %v", mig.ID, cause)
	o.transitionWithDetail(ctx, mig, from, models.StatusError, map[string]interface{}{
		"dest_compute": nil,
		"dest_node":    nil,
	}, cause.Error())
	mig.DestCompute = nil
	mig.DestNode = nil
}

// releaseClaim gives a held claim's capacity back, logging on the
// never-expected failure.
func (o *Orchestrator) releaseClaim(ctx context.Context, claim *models.Claim) {
	if claim == nil {
		return
	}
	if err := o.claims.Release(ctx, claim); err != nil {
		log.Printf("orchestrator: release claim %d: %v", claim.ID, err)
	}
}

// transition compare-and-swaps the migration's status from -> to, applying
// any extra column updates in the same statement, and publishes the
// transition event. Returns false without side effects when the record is
// no longer in the from status (e.g. a concurrent cancel won).
func (o *Orchestrator) transition(ctx context.Context, mig *models.Migration, from, to models.MigrationStatus, extra map[string]interface{}) bool {
	return o.transitionWithDetail(ctx, mig, from, to, extra, "")
}

func (o *Orchestrator) transitionWithDetail(ctx context.Context, mig *models.Migration, from, to models.MigrationStatus, extra map[string]interface{}, detail string) bool {
	if !CanTransition(from, to) {
		log.Printf("orchestrator: refusing illegal transition %s -> %s for %s", from, to, mig.ID)
		return false
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := o.db.WithContext(ctx).Model(&models.Migration{}).
		Where("id = ? AND status = ?", mig.ID, from).
		Updates(updates)
	if result.Error != nil {
		log.Printf("orchestrator: transition %s %s -> %s: %v", mig.ID, from, to, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}

	mig.Status = to
	notify.Publish(ctx, o.sink, notify.Event{
		MigrationID: mig.ID,
		InstanceID:  mig.InstanceID,
		OldStatus:   string(from),
		NewStatus:   string(to),
		Detail:      detail,
	})
	return true
}
