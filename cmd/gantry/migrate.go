package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		serverURL string
		host      string
		block     string
		wait      bool
	)

	cmd := &cobra.Command{
		Use:   "migrate <instance-id>",
		Short: "Live-migrate an instance",
		Long:  "Triggers a live migration through the running Gantry server. With no --host the destination is auto-selected.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, serverURL, args[0], host, block, wait)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8700", "Gantry server base URL")
	cmd.Flags().StringVar(&host, "host", "", "explicit destination host (default: auto-select)")
	cmd.Flags().StringVar(&block, "block-migration", "auto", "disk copy mode: true, false or auto")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the migration reaches a terminal status")
	return cmd
}

func runMigrate(cmd *cobra.Command, serverURL, instanceID, host, block string, wait bool) error {
	out := cmd.OutOrStdout()

	body := map[string]interface{}{}
	if host != "" {
		body["host"] = host
	}
	switch block {
	case "true":
		body["block_migration"] = true
	case "false":
		body["block_migration"] = false
	case "auto", "":
	default:
		return fmt.Errorf("invalid --block-migration %q", block)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/instances/%s/migrate", serverURL, instanceID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("trigger migration: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("trigger migration: status %d: %s", resp.StatusCode, payload)
	}

	var mig struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &mig); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(out, "Migration %s %s\n", mig.ID, mig.Status)

	if !wait {
		return nil
	}
	return pollMigration(cmd.Context(), out, serverURL, mig.ID)
}

// pollMigration polls the status endpoint until the migration is terminal or
// ctx is cancelled.
func pollMigration(ctx context.Context, out io.Writer, serverURL, migrationID string) error {
	url := fmt.Sprintf("%s/api/migrations/%s", serverURL, migrationID)
	last := ""
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("poll migration: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("poll migration: %w", err)
		}
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("poll migration: status %d: %s", resp.StatusCode, payload)
		}

		var mig struct {
			Status      string  `json:"status"`
			DestCompute *string `json:"dest_compute"`
		}
		if err := json.Unmarshal(payload, &mig); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if mig.Status != last {
			fmt.Fprintf(out, "Migration %s %s\n", migrationID, mig.Status)
			last = mig.Status
		}
		switch mig.Status {
		case "completed":
			if mig.DestCompute != nil {
				fmt.Fprintf(out, "Instance now on %s\n", *mig.DestCompute)
			}
			return nil
		case "error":
			return fmt.Errorf("migration %s failed", migrationID)
		case "cancelled":
			return fmt.Errorf("migration %s was cancelled", migrationID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
