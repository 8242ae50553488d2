package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"globalchat/internal/config"
	"globalchat/internal/database"
	"globalchat/pkg/interfaces"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "globalchat",
	Short: "GlobalChat - real-time chat with per-recipient translation",
	Long: `GlobalChat relays chat messages over WebSocket and translates each one
into the preferred language of every recipient.

Configuration is resolved from defaults, then the TOML file given with
--config (or GLOBALCHAT_CONFIG_FILE), then GLOBALCHAT_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("GLOBALCHAT_CONFIG_FILE"), "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
}

// loadConfig resolves the configuration and the logger for a command
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfigWithPrecedence(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = strings.ToUpper(logLevel)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logs.GetLoggerFromString(strings.ToUpper(cfg.Log.Level)), nil
}

// openStore opens the configured storage, applying pending migrations
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (interfaces.Store, error) {
	store, err := database.Open(ctx, cfg.StorageConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}
