// Package agent addresses the per-host execution agents that actually move
// workload state. The orchestrator talks to agents strictly through the
// Registry/Agent interfaces keyed by host name; production wires HTTP
// clients to remote agents, tests substitute in-process fakes. The
// orchestrator's logic is identical either way.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrRemoteExecutionFailed means an execution agent reported a terminal
// failure. On failure the workload is guaranteed to remain runnable on the
// source, so the only recovery the caller owes is claim release.
var ErrRemoteExecutionFailed = errors.New("remote execution failed")

// ExecRequest is the opaque "execute migration" directive. The substeps
// behind it (pre-copy, cutover, confirm) belong to the agents.
type ExecRequest struct {
	MigrationID    string `json:"migration_id"`
	InstanceID     string `json:"instance_id"`
	SourceHost     string `json:"source_host"`
	DestHost       string `json:"dest_host"`
	BlockMigration bool   `json:"block_migration"`
}

// Agent is one host's execution agent.
type Agent interface {
	// Prepare readies the host to receive the workload. Issued to the
	// destination before Execute is issued to the source.
	Prepare(ctx context.Context, req ExecRequest) error
	// Execute drives the migration from the source side and blocks until
	// the agent reports a terminal success or failure.
	Execute(ctx context.Context, req ExecRequest) error
}

// Registry resolves a host name to its execution agent.
type Registry interface {
	Agent(host string) (Agent, error)
}

// StaticRegistry is a fixed host-to-agent map.
type StaticRegistry map[string]Agent

// Agent returns the agent for the named host.
func (r StaticRegistry) Agent(host string) (Agent, error) {
	a, ok := r[host]
	if !ok {
		return nil, fmt.Errorf("agent: no execution agent registered for host %q", host)
	}
	return a, nil
}
