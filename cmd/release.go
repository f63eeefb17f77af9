package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/onekm/internal/ipc"
)

var releaseExit bool

// releaseCmd represents the release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Return control to the local machine",
	Long: `Force the controller back to LOCAL, ungrabbing the keyboard and mouse and
releasing everything held on the target. With --exit the controller stops
afterwards.

This command is useful for keybindings in window managers like Hyprland.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		if _, err := client.SendRelease(releaseExit); err != nil {
			return fmt.Errorf("failed to release control: %w", err)
		}

		if releaseExit {
			fmt.Fprintln(cmd.OutOrStdout(), "Control released, controller is stopping")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Control released to local machine")
		}
		return nil
	},
}

func init() {
	releaseCmd.Flags().BoolVar(&releaseExit, "exit", false, "Stop the controller after releasing")
	rootCmd.AddCommand(releaseCmd)
}
