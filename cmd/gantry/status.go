package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corbins/gantry/internal/models"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		instanceID string
	)

	cmd := &cobra.Command{
		Use:   "status [migration-id]",
		Short: "Show migration records",
		Long:  "Lists migration records newest first, or shows one migration in detail. Use --instance to filter.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runStatus(cmd, configPath, id, instanceID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gantry.yaml", "path to Gantry config file")
	cmd.Flags().StringVar(&instanceID, "instance", "", "filter by instance id")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath, migrationID, instanceID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if migrationID != "" {
		var mig models.Migration
		result := gormDB.Where("id = ?", migrationID).Limit(1).Find(&mig)
		if result.Error != nil {
			return fmt.Errorf("load migration: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("migration %s not found", migrationID)
		}
		fmt.Fprintf(out, "Migration %s\n", mig.ID)
		fmt.Fprintf(out, "  instance:        %s\n", mig.InstanceID)
		fmt.Fprintf(out, "  status:          %s\n", mig.Status)
		fmt.Fprintf(out, "  source:          %s (%s)\n", mig.SourceCompute, mig.SourceNode)
		fmt.Fprintf(out, "  destination:     %s (%s)\n", strOrDash(mig.DestCompute), strOrDash(mig.DestNode))
		fmt.Fprintf(out, "  block migration: %t\n", mig.BlockMigration)
		fmt.Fprintf(out, "  created:         %s\n", mig.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  updated:         %s\n", mig.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	}

	q := gormDB.Model(&models.Migration{}).Order("created_at DESC, id DESC")
	if instanceID != "" {
		q = q.Where("instance_id = ?", instanceID)
	}
	var migs []models.Migration
	if err := q.Find(&migs).Error; err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINSTANCE\tSTATUS\tSOURCE\tDEST\tUPDATED")
	for _, m := range migs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.InstanceID, m.Status, m.SourceCompute, strOrDash(m.DestCompute),
			m.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
