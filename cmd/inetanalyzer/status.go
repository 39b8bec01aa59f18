package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inetanalyzer/agent/internal/config"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var stateDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the outcome of the most recent run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if stateDir == "" {
				cfg, err := root.loadConfig(ctx)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				stateDir = cfg.Run.StateDir
			}
			if stateDir == "" {
				return fmt.Errorf("no state directory configured (set run.state_dir or --state-dir)")
			}

			state, err := config.LoadState(ctx, stateDir)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(&state)
		},
	}
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "state directory (overrides run.state_dir)")
	return cmd
}
