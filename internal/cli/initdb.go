package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close()
		fmt.Printf("initialized %s\n", cfg.Database.Path)
		return nil
	},
}
