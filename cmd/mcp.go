package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/memberrec/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio exposing recommend_member, search_members and get_member tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		var recommender mcpserver.Recommender
		if rr, err := a.reranker(); err == nil {
			recommender = rr
		} else {
			fmt.Fprintf(os.Stderr, "Warning: recommend_member disabled: %v\n", err)
		}

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "memberrec MCP server started on stdio (collections=%v)\n", a.index.ListCollections())

		srv := mcpserver.NewServer(recommender, a.index, a.store, "v1")
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
