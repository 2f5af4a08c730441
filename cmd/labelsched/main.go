package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/labelsched/labelsched/internal/app"
	"github.com/labelsched/labelsched/internal/config"
	"github.com/labelsched/labelsched/pkg/logger"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "labelsched",
		Short: "Label-driven cron scheduler for Docker containers",
		Long: `labelsched watches the Docker daemon and schedules commands inside
running containers based on scheduler.* labels. Jobs appear, change
and disappear with the containers that declare them; no restart is
ever needed.`,
		SilenceUsage: true,
	}

	root.AddCommand(runCmd(), configCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Setup logger
			log, err := logger.NewWithConfig(&cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			defer log.Sync()

			// Create and run application
			return app.New(cfg, log).Run()
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file to the system config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfig(); err != nil {
				return err
			}
			dir, err := config.GetSystemConfigDir()
			if err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s/labelsched.yaml\n", dir)
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("labelsched", version)
		},
	}
}
