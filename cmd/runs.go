package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/freshness"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run_id]",
	Short: "Show refresh run history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().String("version", "", "only runs of this version")
	runsCmd.Flags().String("status", "", "only runs with this status (running, completed, failed)")
	runsCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		res, err := a.runs.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("run %s not found", args[0])
		}
		if jsonOutput {
			return printJSON(res)
		}
		printRunResult(res, a.cfg.Model)
		return nil
	}

	version, _ := cmd.Flags().GetString("version")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	list, err := a.runs.List(ctx, freshness.RunFilter{Version: version, Status: freshness.Status(status), Limit: limit})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}
	for _, r := range list {
		fmt.Printf("%s  %-4s %-9s enhance=%-5t stale=%-4d vectorized=%-4d %s\n",
			r.RunID, r.Version, r.Status, r.Enhance, r.Stale, r.Vectorized,
			r.StartedAt.Local().Format(time.DateTime))
	}
	return nil
}
