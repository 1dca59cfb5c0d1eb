// Package placement selects destination hosts for migrations. The
// orchestrator consumes the Selector interface opaquely; the scheduling
// policy behind it is swappable.
package placement

import (
	"context"
	"fmt"
	"sort"

	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/models"
	"gorm.io/gorm"
)

// Candidate is one host a migration could target.
type Candidate struct {
	Compute string
	Node    string
}

// Selector produces an ordered list of destination candidates for an
// instance, never including the excluded hosts. An empty list is a valid
// answer; the caller decides what exhaustion means.
type Selector interface {
	Select(ctx context.Context, inst *models.Instance, excluded []string) ([]Candidate, error)
}

// SpreadSelector picks active hosts with the most free memory first, a
// cheap spread policy that keeps any single node from becoming the default
// target for every migration.
type SpreadSelector struct {
	db     *gorm.DB
	claims *claims.Manager
}

// NewSpreadSelector returns a SpreadSelector over the given inventory.
func NewSpreadSelector(db *gorm.DB, cm *claims.Manager) *SpreadSelector {
	return &SpreadSelector{db: db, claims: cm}
}

// Select returns active hosts that could plausibly fit the instance,
// ordered by free memory descending. Hosts whose free capacity already
// falls short are filtered out here, but the claim itself remains the only
// authority on whether a candidate actually admits the migration.
func (s *SpreadSelector) Select(ctx context.Context, inst *models.Instance, excluded []string) ([]Candidate, error) {
	if inst == nil {
		return nil, fmt.Errorf("placement: instance is required")
	}

	skip := make(map[string]bool, len(excluded))
	for _, h := range excluded {
		skip[h] = true
	}

	var hosts []models.Host
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&hosts).Error; err != nil {
		return nil, fmt.Errorf("placement: list hosts: %w", err)
	}

	type scored struct {
		cand Candidate
		free int64
	}
	var out []scored
	need := claims.ResourcesFor(inst)
	for _, h := range hosts {
		if skip[h.Name] {
			continue
		}
		free, err := s.claims.FreeOn(ctx, h.Name)
		if err != nil {
			return nil, fmt.Errorf("placement: free capacity on %s: %w", h.Name, err)
		}
		if free.VCPUs < need.VCPUs || free.MemoryMB < need.MemoryMB || free.DiskGB < need.DiskGB {
			continue
		}
		out = append(out, scored{cand: Candidate{Compute: h.Name, Node: h.Node}, free: free.MemoryMB})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].free > out[j].free })

	cands := make([]Candidate, 0, len(out))
	for _, s := range out {
		cands = append(cands, s.cand)
	}
	return cands, nil
}
