package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/onekm/internal/ipc"
	"github.com/bnema/onekm/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running controller",
	Long:  `Show whether the controller is LOCAL or REMOTE, the link state and frame counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		st, err := client.SendStatus()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "onekm controller is not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get controller status: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), ui.RenderStatus(st))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
