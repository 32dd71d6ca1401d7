package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/xdump/internal/config"
	"firestige.xyz/xdump/internal/scheduler"
	"firestige.xyz/xdump/internal/utils"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective values",
		Long: `Load the configuration file, apply environment variables and flags, check the
capture window and the BPF filter, and print the resulting configuration as YAML.

Examples:
  xdump validate -c /etc/xdump/config.yml
  xdump validate -i eth0 -d /data -s 09:00 -e 18:00 -x 22,443`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd)
		},
	}
}

func runValidate(cmd *cobra.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	window, err := scheduler.ParseWindow(cfg.StartTime, cfg.EndTime)
	if err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Capture.BPFFilter) != "" {
		if _, err := utils.CompileBpf(cfg.Capture.BPFFilter, cfg.Capture.SnapLen); err != nil {
			return err
		}
	}

	out, err := yaml.Marshal(map[string]*config.Config{"xdump": cfg})
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# VALID: window %s\n", window)
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
