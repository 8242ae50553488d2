package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"globalchat/internal/users"
	"globalchat/pkg/types"
)

var (
	userName          string
	userLanguage      string
	userAutoTranslate bool
)

var userCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Create or update a user profile",
	Long: `Create or replace the profile of a user. The language accepts a code
or an English name ("es", "Spanish").`,
	Args: cobra.ExactArgs(1),
	RunE: runUser,
}

func init() {
	userCmd.Flags().StringVar(&userName, "username", "", "display name (defaults to the user ID)")
	userCmd.Flags().StringVar(&userLanguage, "language", "en", "preferred language")
	userCmd.Flags().BoolVar(&userAutoTranslate, "auto-translate", true, "translate incoming messages")
	rootCmd.AddCommand(userCmd)
}

func runUser(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	identity, err := users.NewDirectory(store, cfg.Auth.UserCacheTTL, log).Register(cmd.Context(), types.Identity{
		ID:                args[0],
		Username:          userName,
		PreferredLanguage: userLanguage,
		AutoTranslate:     userAutoTranslate,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) language=%s auto_translate=%t\n",
		identity.ID, identity.Username, identity.PreferredLanguage, identity.AutoTranslate)
	return nil
}
