package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedline/feedline/internal/db"
	"github.com/feedline/feedline/internal/models"
)

var profileAvatar string

func init() {
	profileSetCmd.Flags().StringVar(&profileAvatar, "avatar", "", "avatar reference")
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage author profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <user-id> <display-name>",
	Short: "Set the display name shown for a user id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close()

		profiles := db.NewProfileRepository(database)
		if err := profiles.Upsert(cmd.Context(), models.Profile{
			ID:          args[0],
			DisplayName: args[1],
			Avatar:      profileAvatar,
		}); err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], args[1])
		return nil
	},
}
