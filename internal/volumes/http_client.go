package volumes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultStorageTimeout = 30 * time.Second

// HTTPStorageClient talks to the external volume service over HTTP.
type HTTPStorageClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStorageClient returns a client for the volume service at baseURL.
func NewHTTPStorageClient(baseURL string) *HTTPStorageClient {
	return &HTTPStorageClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultStorageTimeout},
	}
}

// TerminateConnection posts a terminate-connection action for the volume.
func (c *HTTPStorageClient) TerminateConnection(ctx context.Context, volumeID, host string) error {
	url := fmt.Sprintf("%s/volumes/%s/action", c.baseURL, volumeID)
	body := map[string]interface{}{
		"terminate_connection": map[string]string{"host": host},
	}
	return c.post(ctx, url, body)
}

// AttachmentDelete deletes the attachment record.
func (c *HTTPStorageClient) AttachmentDelete(ctx context.Context, attachmentID string) error {
	url := fmt.Sprintf("%s/attachments/%s", c.baseURL, attachmentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("volumes: build request: %w", err)
	}
	return c.do(req)
}

func (c *HTTPStorageClient) post(ctx context.Context, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("volumes: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("volumes: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPStorageClient) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("volumes: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("volumes: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
	return nil
}
