package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/ingest"
	"github.com/ziadkadry99/memberrec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the memberrec HTTP API: member upload (single and bulk), lookups,
recommendations, refresh runs and a websocket stream of refresh progress.`,
	Annotations: map[string]string{annotationService: "true"},
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port, _ = cmd.Flags().GetInt("port")
	}

	deps := server.Deps{
		Store:    a.store,
		Index:    a.index,
		Importer: ingest.NewImporter(a.store, a.index, a.logger),
		Runs:     a.runs,
		Hub:      a.hub,
		Logger:   a.logger,
	}
	// Without an LLM the server still serves uploads and un-enhanced refreshes.
	if rr, err := a.reranker(); err == nil {
		deps.Reranker = rr
	} else {
		fmt.Fprintf(os.Stderr, "Warning: recommendations disabled: %v\n", err)
	}
	p, err := a.pipeline(a.provider != nil)
	if err != nil {
		return err
	}
	deps.Pipeline = p

	srv := server.New(server.Config{Port: port, AllowAll: a.cfg.Server.AllowAll}, deps)

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	fmt.Fprintf(os.Stderr, "memberrec server %s starting on port %d\n", Version, port)
	fmt.Fprintf(os.Stderr, "  Store:       %s\n", a.cfg.Store.Driver)
	fmt.Fprintf(os.Stderr, "  Cache:       %s\n", a.cfg.Cache.Backend)
	fmt.Fprintf(os.Stderr, "  Collections: %v\n", a.index.ListCollections())

	return srv.Start()
}
