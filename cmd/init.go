package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/memberrec/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize memberrec configuration with an interactive wizard",
	Long:  `Runs an interactive wizard that picks the LLM provider, record store, cache backend and pipeline settings, and writes .memberrec.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard()
		if err != nil {
			return err
		}
		if key := config.APIKeyEnvVar(cfg.Provider); key != "" {
			fmt.Printf("Remember to set %s (a .env file in this directory is loaded automatically).\n", key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
