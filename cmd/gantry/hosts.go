package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/models"
)

func newHostsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Show host inventory and free capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHosts(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gantry.yaml", "path to Gantry config file")
	return cmd
}

func runHosts(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	cm := claims.NewManager(gormDB)

	var hosts []models.Host
	if err := gormDB.Order("name").Find(&hosts).Error; err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tNODE\tACTIVE\tFREE VCPUS\tFREE MEM (MB)\tFREE DISK (GB)")
	for _, h := range hosts {
		free, err := cm.FreeOn(cmd.Context(), h.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d/%d\t%d/%d\t%d/%d\n",
			h.Name, h.Node, h.Active,
			free.VCPUs, h.VCPUs, free.MemoryMB, h.MemoryMB, free.DiskGB, h.DiskGB)
	}
	return w.Flush()
}
