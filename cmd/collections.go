package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List or delete per-version vector collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vector collections and their document counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		names := a.index.ListCollections()
		if len(names) == 0 {
			fmt.Println("No collections. Run `memberrec refresh` to build one.")
			return nil
		}
		prefix := a.cfg.Vector.Namespace + "_"
		for _, name := range names {
			version := strings.TrimPrefix(name, prefix)
			fmt.Printf("%-32s %6d document(s)\n", name, a.index.Count(version))
		}
		return nil
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <version>",
	Short: "Delete the collection of a version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		version := args[0]
		if err := a.index.DeleteCollection(version); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", a.index.CollectionName(version))
		return nil
	},
}

func init() {
	collectionsCmd.AddCommand(collectionsListCmd, collectionsDeleteCmd)
	rootCmd.AddCommand(collectionsCmd)
}
