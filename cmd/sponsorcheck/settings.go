package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var enabledValue string

var settingsEnabledCmd = &cobra.Command{
	Use:   "settings:enabled",
	Short: "Show or set whether sponsor marking is enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if enabledValue == "" {
			on, err := db.Enabled(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("enabled: %t\n", on)
			return nil
		}

		on, err := strconv.ParseBool(enabledValue)
		if err != nil {
			return eris.Wrapf(err, "--value %q", enabledValue)
		}
		if err := db.SetEnabled(cmd.Context(), on); err != nil {
			return err
		}
		fmt.Printf("enabled: %t\n", on)
		return nil
	},
}

func init() {
	settingsEnabledCmd.Flags().StringVar(&enabledValue, "value", "", "true|false (omit to print the current value)")
	rootCmd.AddCommand(settingsEnabledCmd)
}
