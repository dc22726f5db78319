package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir|glob>...",
	Short: "Load member records from CSV or JSON files",
	Long: `Reads member records from CSV or JSON files, directories or doublestar
globs such as "exports/**/*.csv" and upserts them into the record store.
Invalid rows are reported and skipped. Existing members are skipped unless
--overwrite is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("overwrite", false, "replace members that already exist")
	ingestCmd.Flags().Bool("vectorize", false, "insert imported members into the vector index immediately")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	vectorize, _ := cmd.Flags().GetBool("vectorize")

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	importer := ingest.NewImporter(a.store, a.index, a.logger)
	report, err := importer.ImportFiles(ctx, args, ingest.Options{Overwrite: overwrite, Vectorize: vectorize})
	if report != nil {
		printIngestReport(report)
	}
	return err
}

func printIngestReport(r *ingest.Report) {
	fmt.Println("Ingest complete")
	fmt.Printf("  Files:       %d\n", len(r.Files))
	fmt.Printf("  Rows:        %d\n", r.Rows)
	fmt.Printf("  Imported:    %d\n", r.Imported)
	fmt.Printf("  Vectorized:  %d\n", r.Vectorized)
	if len(r.Existing) > 0 {
		fmt.Printf("  Skipped (already exist, use --overwrite): %v\n", r.Existing)
	}
	if len(r.Invalid) > 0 {
		fmt.Printf("  Invalid rows: %d\n", len(r.Invalid))
		for _, e := range r.Invalid {
			fmt.Printf("    %s:%d  %s\n", e.File, e.Row, e.Error)
		}
	}
}
