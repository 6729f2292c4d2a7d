package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/executor"
	"github.com/relaydev/clauder/internal/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List finished runs, newest first",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	history := executor.NewHistory(storage.New(paths.StoragePath()))

	records, err := history.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	if runsLimit > 0 && len(records) > runsLimit {
		records = records[:runsLimit]
	}

	fmt.Printf("%-27s %-10s %8s %-9s %s\n", "RUN", "STATE", "ELAPSED", "TIER", "PROMPT")
	for _, rec := range records {
		tier := rec.Tier
		if tier == "" {
			tier = "-"
		}
		fmt.Printf("%-27s %-10s %7.1fs %-9s %s\n", rec.ID, rec.State, rec.Elapsed, tier, rec.Prompt)
	}
	return nil
}
