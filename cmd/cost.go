package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/config"
	"github.com/ziadkadry99/memberrec/internal/enhance"
	"github.com/ziadkadry99/memberrec/internal/llm"
	"github.com/ziadkadry99/memberrec/internal/search"
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Estimate the LLM cost of an enhanced refresh",
	Long:  `Counts the stale members of a version and estimates the tokens and API cost of regenerating their summaries, without calling any service.`,
	RunE:  runCost,
}

func init() {
	costCmd.Flags().String("version", "v1", "pipeline version to estimate")
	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	version, _ := cmd.Flags().GetString("version")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stale, err := a.store.GetStale(ctx, version, a.cfg.Pipeline.TTL)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Printf("No stale members for %s.\n", version)
		return nil
	}

	// Estimate never calls the provider or the search engine.
	agent := enhance.NewAgent(nil, search.NewDuckDuckGo(a.cfg.Search.Endpoint), enhance.Config{
		Model:         a.cfg.Model,
		PromptVersion: a.cfg.Pipeline.PromptVersion,
		MaxResults:    a.cfg.Search.MaxResults,
	}, a.logger)
	opts := enhance.Options{CompanySearch: a.cfg.Pipeline.CompanySearch, ProfileSearch: a.cfg.Pipeline.ProfileSearch}

	var total llm.Usage
	for _, m := range stale {
		u, err := agent.Estimate(m, opts)
		if err != nil {
			return err
		}
		total.Merge(u)
	}

	fmt.Println("Cost Estimate (enhanced refresh)")
	fmt.Println("================================")
	fmt.Printf("  Version:           %s\n", version)
	fmt.Printf("  Stale members:     %d\n", len(stale))
	fmt.Printf("  Estimated tokens:  %d input, %d output\n", total.InputTokens, total.OutputTokens)
	fmt.Printf("  Minimum duration:  %s (delay %s between members)\n",
		a.cfg.Pipeline.Delay*time.Duration(len(stale)-1), a.cfg.Pipeline.Delay)
	fmt.Println()

	fmt.Println("  Model Comparison:")
	listed := false
	for _, p := range []config.ProviderType{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle} {
		model := config.GetPreset(p).Model
		marker := " "
		if model == a.cfg.Model {
			marker = "*"
			listed = true
		}
		fmt.Printf("  %s %-28s ~$%.4f\n", marker, model, llm.EstimateUsageCost(model, total))
	}
	switch {
	case listed:
	case llm.Priced(a.cfg.Model):
		fmt.Printf("  * %-28s ~$%.4f\n", a.cfg.Model, llm.EstimateUsageCost(a.cfg.Model, total))
	default:
		fmt.Printf("  * %-28s (no price data)\n", a.cfg.Model)
	}
	return nil
}
