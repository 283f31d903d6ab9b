// Package cmd holds the one-shot CLI subcommands shipped with guardian.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"guardian/graph"
	"guardian/ingest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewGraphCmd builds the "graph" subcommand: read the spool once, build the
// network topology graph and write it out as JSON.
func NewGraphCmd() *cobra.Command {
	var spoolDir string
	var output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build a network topology graph from the event spool",
		Long: `Reads every record currently in the event spool (without consuming it),
builds the deduplicated process-to-endpoint connection graph from the
network-category events and writes the snapshot as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop().Sugar()
			builder := graph.NewBuilder(logger)

			parsed, failed, err := ingest.ReadSpool(spoolDir, builder.Observe, logger)
			if err != nil {
				return fmt.Errorf("failed to read spool: %w", err)
			}

			snapshot := builder.Snapshot()
			data, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode graph: %w", err)
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Printf("Network graph built: %d nodes, %d edges (%d records, %d malformed)\n",
				snapshot.Stats.Nodes, snapshot.Stats.Edges, parsed, failed)
			fmt.Printf("Output: %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&spoolDir, "spool", "./data/spool", "event spool directory")
	cmd.Flags().StringVarP(&output, "output", "o", "network_graph.json", "output file")
	return cmd
}
