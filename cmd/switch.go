package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/onekm/internal/ipc"
	"github.com/bnema/onekm/internal/logger"
)

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Toggle control between LOCAL and REMOTE",
	Long: `Toggle control between this machine and the target, exactly like pressing
the hotkey. The command talks to a running controller over its unix socket.

Example usage in window manager configs:
  Hyprland: bind = $mainMod SHIFT, S, exec, onekm switch
  i3/Sway:  bindsym $mod+Shift+s exec onekm switch
`,
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	client, err := ipc.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create IPC client: %w", err)
	}

	logger.Debug("Sending switch command")
	st, err := client.SendSwitch()
	if err != nil {
		return fmt.Errorf("failed to switch: %w", err)
	}

	if st.Remote {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Control switched to REMOTE")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Control switched to LOCAL")
	}
	return nil
}
