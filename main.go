package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-scanner/cmd"
	"github.com/mattsolo1/grove-scanner/cmd/config"
	"github.com/mattsolo1/grove-scanner/pkg/service"
)

var svc *service.Service

func main() {
	rootCmd := &cobra.Command{
		Use:           "scan",
		Short:         "Manage scanned documents on local storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddGlobalFlags(rootCmd)

	rootCmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		// This runs once before any subcommand
		if c.Name() == "version" {
			return nil
		}
		config.InitConfig()

		logger, err := config.NewLogger()
		if err != nil {
			return err
		}
		svc, err = config.InitService(logger)
		if err != nil {
			return fmt.Errorf("failed to initialize service: %w", err)
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(c *cobra.Command, args []string) error {
		if svc == nil {
			return nil
		}
		return svc.Close()
	}

	rootCmd.AddCommand(cmd.NewNewCmd(&svc))
	rootCmd.AddCommand(cmd.NewListCmd(&svc))
	rootCmd.AddCommand(cmd.NewShowCmd(&svc))
	rootCmd.AddCommand(cmd.NewSearchCmd(&svc))
	rootCmd.AddCommand(cmd.NewRenameCmd(&svc))
	rootCmd.AddCommand(cmd.NewLockCmd(&svc))
	rootCmd.AddCommand(cmd.NewDeleteCmd(&svc))
	rootCmd.AddCommand(cmd.NewRestoreCmd(&svc))
	rootCmd.AddCommand(cmd.NewPurgeCmd(&svc))
	rootCmd.AddCommand(cmd.NewPageCmd(&svc))
	rootCmd.AddCommand(cmd.NewStatsCmd(&svc))
	rootCmd.AddCommand(cmd.NewVerifyCmd(&svc))
	rootCmd.AddCommand(cmd.NewDoctorCmd(&svc))
	rootCmd.AddCommand(cmd.NewBackupCmd(&svc))
	rootCmd.AddCommand(cmd.NewRestoreBackupCmd(&svc))
	rootCmd.AddCommand(cmd.NewCleanupCmd(&svc))
	rootCmd.AddCommand(cmd.NewMigrateCmd(&svc))
	rootCmd.AddCommand(cmd.NewReindexCmd(&svc))
	rootCmd.AddCommand(cmd.NewExportCmd(&svc))
	rootCmd.AddCommand(cmd.NewTreeCmd(&svc))
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
