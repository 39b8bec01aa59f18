package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inetanalyzer/agent/internal/config"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var (
		force      bool
		monitorID  string
		configURLs []string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file populated with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Client.MonitorID = monitorID
			cfg.Client.ConfigURLs = configURLs

			path := root.path()
			if err := config.Write(path, cfg, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&monitorID, "monitor-id", "", "monitor id to record")
	cmd.Flags().StringSliceVar(&configURLs, "config-url", nil, "configuration document URL (repeatable)")
	return cmd
}
