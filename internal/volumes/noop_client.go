package volumes

import (
	"context"
	"log"
)

// NoopClient is the storage client for deployments without a managed volume
// service. It logs each skipped teardown step so misconfiguration stays
// visible, and never fails.
type NoopClient struct{}

// TerminateConnection logs and succeeds.
func (NoopClient) TerminateConnection(_ context.Context, volumeID, host string) error {
	log.Printf("volumes: no storage service configured, skipping terminate_connection for %s on %s", volumeID, host)
	return nil
}

// AttachmentDelete logs and succeeds.
func (NoopClient) AttachmentDelete(_ context.Context, attachmentID string) error {
	log.Printf("volumes: no storage service configured, skipping attachment_delete for %s", attachmentID)
	return nil
}
