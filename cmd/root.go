package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "memberrec",
	Short: "Member profile enrichment and LLM-reranked recommendations",
	Long: `memberrec keeps member profiles fresh by summarising them with an LLM,
indexes the summaries in per-version vector collections and recommends,
for any member, the most relevant other member with a short reason.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		l, err := newLogger(verbose, cmd.Annotations[annotationService] == "true")
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".memberrec.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// annotationService marks long-running commands, which log at info level.
const annotationService = "service"

// newLogger builds a development logger for --verbose and a production
// logger otherwise. One-shot commands only log warnings so their output
// stays readable. Both write to stderr.
func newLogger(verbose, service bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if !service {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
