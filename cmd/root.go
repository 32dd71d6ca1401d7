// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/xdump/internal/config"
	"firestige.xyz/xdump/internal/daemon"
)

// NewRootCmd builds the command tree. The root command runs the capture daemon in the foreground.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xdump",
		Short: "xdump - scheduled packet capture daemon",
		Long: `xdump captures link-layer frames on one interface during a daily time window
and writes them to a dated pcap file ({data_home}/{prefix}-{YYYYMMDD}.pcap).

Frames whose TCP or UDP source or destination port is excluded are dropped.
The daemon stops on SIGINT/SIGTERM and reloads the log level on SIGHUP.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "config file path")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newValidateCmd())
	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads the configuration named by --config with the command's flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path, cmd.Flags())
	return cfg, path, err
}

func runDaemon(cmd *cobra.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	d := daemon.New(cfg, path, cmd.Flags())
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
