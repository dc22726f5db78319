package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/rerank"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend [member_no]",
	Short: "Recommend the most relevant other member",
	Long: `Recommends, for one member or for every member in --from..--to, the most
relevant other member among its nearest neighbours in the version's vector
collection, using the LLM to pick and justify the match. Results are cached.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().String("version", "v1", "pipeline version whose collection is searched")
	recommendCmd.Flags().Int64("from", 0, "first member_no of a range")
	recommendCmd.Flags().Int64("to", 0, "last member_no of a range (inclusive)")
	recommendCmd.Flags().Bool("json", false, "output as JSON")
	recommendCmd.Flags().Bool("csv", false, "output a range as CSV")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	version, _ := cmd.Flags().GetString("version")
	from, _ := cmd.Flags().GetInt64("from")
	to, _ := cmd.Flags().GetInt64("to")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	csvOutput, _ := cmd.Flags().GetBool("csv")

	ranged := cmd.Flags().Changed("from") || cmd.Flags().Changed("to")
	switch {
	case len(args) == 1 && ranged:
		return errors.New("pass either a member_no or --from/--to, not both")
	case len(args) == 0 && !ranged:
		return errors.New("a member_no or --from/--to is required")
	case ranged && (from <= 0 || to < from):
		return errors.New("--from and --to must be positive with from <= to")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rr, err := a.reranker()
	if err != nil {
		return err
	}

	if ranged {
		res, err := rr.RecommendRange(ctx, from, to, version)
		if err != nil {
			return err
		}
		switch {
		case csvOutput:
			return rerank.WriteCSV(os.Stdout, res.Pairs)
		case jsonOutput:
			return printJSON(res)
		}
		for _, p := range res.Pairs {
			fmt.Printf("%d -> %d  %s\n", p.MemberNo, p.MatchedMemberNo, p.Reason)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "member %d: %s\n", e.MemberNo, e.Error)
		}
		return nil
	}

	memberNo, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || memberNo <= 0 {
		return fmt.Errorf("invalid member_no %q", args[0])
	}
	rec, err := rr.RecommendByID(ctx, memberNo, version)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Printf("No similar members found for member %d in %s.\n", memberNo, version)
		return nil
	}
	switch {
	case csvOutput:
		return rerank.WriteCSV(os.Stdout, []rerank.Pair{*rec})
	case jsonOutput:
		return printJSON(rec)
	}
	fmt.Printf("Recommended member: %d\n", rec.MatchedMemberNo)
	fmt.Printf("Reason: %s\n", rec.Reason)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
