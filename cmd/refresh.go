package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/freshness"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/progress"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-summarise and re-index stale members",
	Long: `Finds members flagged for a version that were never refreshed or whose
last refresh is older than the TTL, optionally regenerates their summaries
with the LLM (--enhance), stores them and inserts them into the version's
vector collection.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().String("version", string(freshness.V1), "pipeline version to refresh")
	refreshCmd.Flags().Bool("enhance", false, "regenerate summaries with the LLM")
	refreshCmd.Flags().Duration("delay", 0, "pause between enhanced members (default from config)")
	refreshCmd.Flags().Duration("ttl", 0, "how long a refreshed member stays fresh (default from config)")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, _ := cmd.Flags().GetString("version")
	enhanceFlag, _ := cmd.Flags().GetBool("enhance")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("delay") {
		a.cfg.Pipeline.Delay, _ = cmd.Flags().GetDuration("delay")
	}
	if cmd.Flags().Changed("ttl") {
		a.cfg.Pipeline.TTL, _ = cmd.Flags().GetDuration("ttl")
	}

	p, err := a.pipeline(enhanceFlag)
	if err != nil {
		return err
	}

	reporter := progress.NewReporter("Refreshing " + version)
	started := false
	res, err := p.Run(ctx, version, freshness.RunOptions{
		Enhance: enhanceFlag,
		Progress: func(processed, total int, memberNo int64) {
			if !started {
				reporter.Start(total)
				started = true
			}
			reporter.Update(processed, fmt.Sprintf("member %d", memberNo))
		},
	})
	if started {
		reporter.Finish()
	}
	if res != nil {
		printRunResult(res, a.cfg.Model)
	}
	return err
}

func printRunResult(res *freshness.Result, model string) {
	fmt.Println()
	fmt.Printf("Refresh %s (%s)\n", res.Status, res.RunID)
	fmt.Printf("  Version:     %s\n", res.Version)
	fmt.Printf("  Stale:       %d\n", res.Stale)
	if res.Enhance {
		fmt.Printf("  Enhanced:    %d\n", res.Enhanced)
		fmt.Printf("  Failed:      %d\n", res.Failed)
		fmt.Printf("  Tokens used: %d input, %d output\n", res.Usage.InputTokens, res.Usage.OutputTokens)
		if cost := llm.EstimateUsageCost(model, res.Usage); cost > 0 {
			fmt.Printf("  Est. cost:   $%.4f\n", cost)
		}
	}
	fmt.Printf("  Upserted:    %d\n", res.Upserted)
	fmt.Printf("  Vectorized:  %d\n", res.Vectorized)
	fmt.Printf("  Duration:    %s\n", res.Duration().Round(time.Millisecond))
	for _, e := range res.Errors {
		fmt.Printf("  ! member %d: %s\n", e.MemberNo, e.Error)
	}
	if res.Error != "" {
		fmt.Printf("  Error:       %s\n", res.Error)
	}
}
