package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corbins/gantry/internal/agent"
	"github.com/corbins/gantry/internal/api"
	"github.com/corbins/gantry/internal/claims"
	"github.com/corbins/gantry/internal/config"
	"github.com/corbins/gantry/internal/db"
	"github.com/corbins/gantry/internal/notify"
	"github.com/corbins/gantry/internal/notify/discord"
	"github.com/corbins/gantry/internal/notify/slack"
	"github.com/corbins/gantry/internal/orchestrator"
	"github.com/corbins/gantry/internal/placement"
	"github.com/corbins/gantry/internal/volumes"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Gantry control node",
		Long:  "Starts the migration orchestrator and its HTTP API. Blocks until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "gantry.yaml", "path to Gantry config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedHosts(gormDB, cfg.Hosts); err != nil {
		return err
	}

	cm := claims.NewManager(gormDB)
	sel := placement.NewSpreadSelector(gormDB, cm)
	reg := agent.RegistryFromConfig(cfg)
	vc := volumes.NewCoordinator(storageClient(cfg))
	sink := buildSink(cfg)

	orch, err := orchestrator.New(gormDB, cm, sel, reg, vc, sink)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Digest.Schedule != "" {
		go func() {
			if err := notify.StartDigest(ctx, gormDB, sink, cfg.Digest.Schedule); err != nil {
				log.Printf("serve: digest: %v", err)
			}
		}()
		fmt.Fprintf(out, "Digest scheduled (%s)\n", cfg.Digest.Schedule)
	}

	return api.Start(ctx, api.StartOpts{
		DB:           gormDB,
		Orchestrator: orch,
		Claims:       cm,
		Port:         cfg.Listen.Port,
		Out:          out,
	})
}

// storageClient picks the configured volume service client, or the logging
// noop when none is configured.
func storageClient(cfg *config.Config) volumes.StorageClient {
	if cfg.Storage.URL != "" {
		return volumes.NewHTTPStorageClient(cfg.Storage.URL)
	}
	return volumes.NoopClient{}
}

// buildSink assembles the notification fan-out from config. The log sink is
// always present so transitions are observable without any chat platform.
func buildSink(cfg *config.Config) notify.Sink {
	sinks := notify.MultiSink{notify.LogSink{}}
	if cfg.Notify.Slack.BotToken != "" {
		sinks = append(sinks, slack.New(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel))
	}
	if cfg.Notify.Discord.BotToken != "" {
		ds, err := discord.New(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID)
		if err != nil {
			log.Printf("serve: discord sink disabled: %v", err)
		} else {
			sinks = append(sinks, ds)
		}
	}
	return sinks
}
