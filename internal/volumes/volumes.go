// Package volumes coordinates source-side storage teardown after a
// migration. Detaching is best-effort housekeeping: the workload already
// runs on the destination, so a storage-backend error here must never turn
// into a migration failure.
package volumes

import (
	"context"
	"fmt"

	"github.com/corbins/gantry/internal/models"
)

// StorageClient is the slice of the external volume service the coordinator
// needs. Each call may fail independently.
type StorageClient interface {
	// TerminateConnection tears down the host-side connection for a volume.
	TerminateConnection(ctx context.Context, volumeID, host string) error
	// AttachmentDelete removes the attachment record in the volume service.
	AttachmentDelete(ctx context.Context, attachmentID string) error
}

// DetachEntry records the outcome of one attachment's teardown steps.
type DetachEntry struct {
	VolumeID     string
	AttachmentID string
	TerminateErr error
	DeleteErr    error
}

// Failed reports whether either step failed.
func (e DetachEntry) Failed() bool {
	return e.TerminateErr != nil || e.DeleteErr != nil
}

// DetachReport is the per-attachment outcome of a teardown pass. It is
// informational only; the coordinator never raises.
type DetachReport struct {
	InstanceID string
	Host       string
	Entries    []DetachEntry
}

// Failed reports whether any attachment had a failing step.
func (r DetachReport) Failed() bool {
	for _, e := range r.Entries {
		if e.Failed() {
			return true
		}
	}
	return false
}

// Summary renders the report as a short human-readable string.
func (r DetachReport) Summary() string {
	failed := 0
	for _, e := range r.Entries {
		if e.Failed() {
			failed++
		}
	}
	return fmt.Sprintf("detached %d/%d attachments on %s for instance %s",
		len(r.Entries)-failed, len(r.Entries), r.Host, r.InstanceID)
}

// Coordinator detaches volume attachments from a source host.
type Coordinator struct {
	client StorageClient
}

// NewCoordinator returns a Coordinator using the given storage client.
func NewCoordinator(client StorageClient) *Coordinator {
	return &Coordinator{client: client}
}

// DetachAll attempts both teardown steps for every attachment. Failure is
// isolated per attachment: one volume's error never stops the remaining
// volumes, and a failed terminate_connection does not stop that same
// volume's attachment_delete. Errors are collected in the report, never
// returned.
func (c *Coordinator) DetachAll(ctx context.Context, instanceID, host string, attachments []models.VolumeAttachment) DetachReport {
	report := DetachReport{
		InstanceID: instanceID,
		Host:       host,
		Entries:    make([]DetachEntry, 0, len(attachments)),
	}

	for _, att := range attachments {
		entry := DetachEntry{
			VolumeID:     att.VolumeID,
			AttachmentID: att.AttachmentID,
		}
		if err := c.client.TerminateConnection(ctx, att.VolumeID, host); err != nil {
			entry.TerminateErr = fmt.Errorf("volumes: terminate connection for %s on %s: %w", att.VolumeID, host, err)
		}
		if err := c.client.AttachmentDelete(ctx, att.AttachmentID); err != nil {
			entry.DeleteErr = fmt.Errorf("volumes: delete attachment %s: %w", att.AttachmentID, err)
		}
		report.Entries = append(report.Entries, entry)
	}

	return report
}
