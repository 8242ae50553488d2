package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"globalchat/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long:  `Serve the REST API and the WebSocket endpoint until SIGINT or SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// The hub outlives the signal context, Stop drains it
	if err := application.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return application.Stop(shutdownCtx)
}
