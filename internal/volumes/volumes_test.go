package volumes

import (
	"context"
	"errors"
	"testing"

	"github.com/corbins/gantry/internal/faultinject"
	"github.com/corbins/gantry/internal/models"
)

// scriptedClient is a StorageClient whose failures come from a fault script.
type scriptedClient struct {
	script *faultinject.Script
}

func (c *scriptedClient) TerminateConnection(_ context.Context, volumeID, host string) error {
	return c.script.Fire("terminate_connection")
}

func (c *scriptedClient) AttachmentDelete(_ context.Context, attachmentID string) error {
	return c.script.Fire("attachment_delete")
}

func twoAttachments() []models.VolumeAttachment {
	return []models.VolumeAttachment{
		{InstanceID: "inst-1", VolumeID: "vol-a", AttachmentID: "att-a", BootIndex: 0},
		{InstanceID: "inst-1", VolumeID: "vol-b", AttachmentID: "att-b", BootIndex: 1},
	}
}

func TestDetachAll_AllSucceed(t *testing.T) {
	script := faultinject.NewScript(nil)
	c := NewCoordinator(&scriptedClient{script: script})

	report := c.DetachAll(context.Background(), "inst-1", "host1", twoAttachments())
	if report.Failed() {
		t.Fatalf("report failed: %+v", report)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(report.Entries))
	}
	if got := script.Calls("terminate_connection"); got != 2 {
		t.Errorf("terminate_connection calls = %d, want 2", got)
	}
	if got := script.Calls("attachment_delete"); got != 2 {
		t.Errorf("attachment_delete calls = %d, want 2", got)
	}
}

func TestDetachAll_TerminateFailsOnce(t *testing.T) {
	// Volume A's terminate_connection fails exactly once; volume B must
	// still be attempted, and A's attachment_delete too.
	bork := errors.New("storage backend down")
	script := faultinject.NewScript(map[string]*faultinject.Fault{
		"terminate_connection": {Count: 1, Err: bork},
	})
	c := NewCoordinator(&scriptedClient{script: script})

	report := c.DetachAll(context.Background(), "inst-1", "host1", twoAttachments())

	if !report.Failed() {
		t.Fatal("report should record the failure")
	}
	if got := script.Calls("terminate_connection"); got != 2 {
		t.Errorf("terminate_connection calls = %d, want 2", got)
	}
	if got := script.Fired("terminate_connection"); got != 1 {
		t.Errorf("terminate_connection failures = %d, want 1", got)
	}
	if got := script.Calls("attachment_delete"); got != 2 {
		t.Errorf("attachment_delete calls = %d, want 2 (continue past terminate failure)", got)
	}

	a, b := report.Entries[0], report.Entries[1]
	if a.TerminateErr == nil || !errors.Is(a.TerminateErr, bork) {
		t.Errorf("entry A terminate err = %v, want wrapped %v", a.TerminateErr, bork)
	}
	if a.DeleteErr != nil {
		t.Errorf("entry A delete err = %v, want nil", a.DeleteErr)
	}
	if b.Failed() {
		t.Errorf("entry B should be clean: %+v", b)
	}
}

func TestDetachAll_DeleteFailsOnce(t *testing.T) {
	bork := errors.New("attachment gone sideways")
	script := faultinject.NewScript(map[string]*faultinject.Fault{
		"attachment_delete": {Count: 1, Err: bork},
	})
	c := NewCoordinator(&scriptedClient{script: script})

	report := c.DetachAll(context.Background(), "inst-1", "host1", twoAttachments())

	if got := script.Calls("attachment_delete"); got != 2 {
		t.Errorf("attachment_delete calls = %d, want 2", got)
	}
	if got := script.Fired("attachment_delete"); got != 1 {
		t.Errorf("attachment_delete failures = %d, want 1", got)
	}
	if !report.Entries[0].Failed() || report.Entries[1].Failed() {
		t.Errorf("unexpected report: %+v", report.Entries)
	}
}

func TestDetachAll_EveryVolumeAttempted(t *testing.T) {
	// All calls fail forever; every attachment still gets both steps.
	script := faultinject.NewScript(map[string]*faultinject.Fault{
		"terminate_connection": {Count: -1, Err: errors.New("no")},
		"attachment_delete":    {Count: -1, Err: errors.New("no")},
	})
	c := NewCoordinator(&scriptedClient{script: script})

	atts := append(twoAttachments(), models.VolumeAttachment{
		InstanceID: "inst-1", VolumeID: "vol-c", AttachmentID: "att-c", BootIndex: 2,
	})
	report := c.DetachAll(context.Background(), "inst-1", "host1", atts)

	if got := script.Calls("terminate_connection"); got != 3 {
		t.Errorf("terminate_connection calls = %d, want 3", got)
	}
	if got := script.Calls("attachment_delete"); got != 3 {
		t.Errorf("attachment_delete calls = %d, want 3", got)
	}
	for i, e := range report.Entries {
		if e.TerminateErr == nil || e.DeleteErr == nil {
			t.Errorf("entry %d missing recorded errors: %+v", i, e)
		}
	}
}

func TestDetachReport_Summary(t *testing.T) {
	report := DetachReport{
		InstanceID: "inst-1",
		Host:       "host1",
		Entries: []DetachEntry{
			{VolumeID: "vol-a", TerminateErr: errors.New("x")},
			{VolumeID: "vol-b"},
		},
	}
	got := report.Summary()
	want := "detached 1/2 attachments on host1 for instance inst-1"
	if got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestDetachAll_NoAttachments(t *testing.T) {
	c := NewCoordinator(&scriptedClient{script: faultinject.NewScript(nil)})
	report := c.DetachAll(context.Background(), "inst-1", "host1", nil)
	if report.Failed() || len(report.Entries) != 0 {
		t.Errorf("report = %+v", report)
	}
}
