package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bnema/onekm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage onekm configuration",
	Long:  `Show, create or locate the onekm configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Config file: %s\n\n", config.GetConfigPath())

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		rows := []struct {
			section string
			pairs   [][2]string
		}{
			{"transport", [][2]string{
				{"kind", cfg.Transport.Kind},
				{"bind_address", cfg.Transport.BindAddress},
				{"port", fmt.Sprint(cfg.Transport.Port)},
				{"server_address", cfg.Transport.ServerAddress},
				{"serial_port", cfg.Transport.SerialPort},
				{"baud_rate", fmt.Sprint(cfg.Transport.BaudRate)},
				{"send_queue", fmt.Sprint(cfg.Transport.SendQueue)},
			}},
			{"controller", [][2]string{
				{"screen", fmt.Sprintf("%dx%d", cfg.Controller.ScreenWidth, cfg.Controller.ScreenHeight)},
				{"edge_trigger", fmt.Sprint(cfg.Controller.EdgeTrigger)},
				{"target_edge", cfg.Controller.TargetEdge},
				{"edge_threshold", fmt.Sprint(cfg.Controller.EdgeThreshold)},
				{"unblock_margin", fmt.Sprint(cfg.Controller.UnblockMargin)},
				{"hotkey", cfg.Controller.Hotkey},
				{"hotkey_guard", fmt.Sprintf("%d presses in %dms", cfg.Controller.HotkeyPresses, cfg.Controller.HotkeyWindowMS)},
				{"idle_flush_ms", fmt.Sprint(cfg.Controller.IdleFlushMS)},
				{"batch_size", fmt.Sprint(cfg.Controller.BatchSize)},
				{"heartbeat_seconds", fmt.Sprint(cfg.Controller.HeartbeatSecs)},
				{"exit_on_ctrl_c", fmt.Sprint(cfg.Controller.ExitOnCtrlC)},
				{"escape_releases", fmt.Sprint(cfg.Controller.EscapeReleases)},
				{"local_resync", fmt.Sprint(cfg.Controller.LocalResync)},
				{"devices", strings.Join(cfg.Controller.Devices, ", ")},
			}},
			{"client", [][2]string{
				{"reconnect_delay", fmt.Sprint(cfg.Client.ReconnectDelay)},
				{"activity_timeout", fmt.Sprint(cfg.Client.ActivityTimeout)},
				{"device_name", cfg.Client.DeviceName},
			}},
			{"relay", [][2]string{
				{"hid_keyboard", cfg.Relay.HIDKeyboard},
				{"hid_mouse", cfg.Relay.HIDMouse},
			}},
			{"logging", [][2]string{
				{"file_logging", fmt.Sprint(cfg.Logging.FileLogging)},
				{"log_level", cfg.Logging.LogLevel},
			}},
		}

		for _, r := range rows {
			fmt.Fprintf(w, "[%s]\n", r.section)
			for _, p := range r.pairs {
				fmt.Fprintf(w, "  %s\t%s\n", p[0], p[1])
			}
		}
		return w.Flush()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		configPath := config.GetConfigPath()

		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Fprintf(out, "Configuration file already exists at: %s\n", configPath)
				fmt.Fprintln(out, "Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Configuration initialized at: %s\n", configPath)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
