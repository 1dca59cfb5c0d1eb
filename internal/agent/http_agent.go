package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/corbins/gantry/internal/config"
)

// HTTPAgent posts migration directives to a remote execution agent. Execute
// has no client-side timeout: the migration runs until the agent reports a
// terminal outcome, and callers bound the wait through ctx if they need to.
type HTTPAgent struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAgent returns an agent client for the given base URL.
func NewHTTPAgent(baseURL string) *HTTPAgent {
	return &HTTPAgent{baseURL: baseURL, client: &http.Client{}}
}

// Prepare posts the prepare directive to the agent.
func (a *HTTPAgent) Prepare(ctx context.Context, req ExecRequest) error {
	return a.post(ctx, "/v1/migrations/prepare", req)
}

// Execute posts the execute directive and blocks until the agent responds
// with the terminal outcome.
func (a *HTTPAgent) Execute(ctx context.Context, req ExecRequest) error {
	return a.post(ctx, "/v1/migrations/execute", req)
}

func (a *HTTPAgent) post(ctx context.Context, path string, req ExecRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("agent: marshal directive: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("agent: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("agent: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent: POST %s: status %d: %s: %w", path, resp.StatusCode, msg, ErrRemoteExecutionFailed)
	}
	return nil
}

// RegistryFromConfig builds a StaticRegistry of HTTP agents from the
// host-to-URL map in config.
func RegistryFromConfig(cfg *config.Config) StaticRegistry {
	reg := make(StaticRegistry, len(cfg.Agents))
	for host, url := range cfg.Agents {
		reg[host] = NewHTTPAgent(url)
	}
	return reg
}
