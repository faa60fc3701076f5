package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roaming/api/status"
	"github.com/kilianp07/roaming/app"
	"github.com/kilianp07/roaming/config"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print the configured infrastructure tree",
	RunE:  runTopology,
}

func init() {
	rootCmd.AddCommand(topologyCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	n, err := app.BuildNetwork(commandContext(cmd), cfg)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), status.Snapshot(n))
}
