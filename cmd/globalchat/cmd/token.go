package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"globalchat/internal/auth"
	"globalchat/internal/users"
	"globalchat/pkg/types"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a registered user",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	directory := users.NewDirectory(store, cfg.Auth.UserCacheTTL, log)
	identity, err := directory.LookupUser(cmd.Context(), args[0])
	if errors.Is(err, types.ErrUserNotFound) {
		return fmt.Errorf("user %q is not registered, create it with `globalchat user %s`", args[0], args[0])
	}
	if err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	token, err := auth.NewGateway([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, directory, log).
		IssueToken(identity.ID, identity.Username, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
