package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/vectordb"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Semantically search indexed member summaries",
	Long:  `Searches a version's vector collection with free text and prints the closest members.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().String("version", "v1", "pipeline version whose collection is searched")
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	version, _ := cmd.Flags().GetString("version")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.index.Search(ctx, args[0], version, limit)
	if errors.Is(err, vectordb.ErrCollectionNotFound) {
		return fmt.Errorf("%w\nRun `memberrec refresh --version %s` first to build the index", err, version)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		if results == nil {
			results = []vectordb.SearchResult{}
		}
		return printJSON(results)
	}
	fmt.Println(vectordb.FormatResults(results))
	return nil
}
