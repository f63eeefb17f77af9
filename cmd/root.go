package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configFile string

	rootCmd = &cobra.Command{
		Use:   "onekm",
		Short: "onekm - one keyboard and mouse for two machines",
		Long: `onekm redirects the keyboard and mouse of one Linux machine to another.
The controller grabs its local evdev devices when control switches to the
remote side and streams compact 9-byte frames over TCP or a serial line to a
target that injects them through uinput or a USB HID gadget.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: /etc/onekm/onekm.toml or ~/.config/onekm/onekm.toml)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(relayCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		config.SetConfigPath(configFile)
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
	return nil
}

// requireRoot fails early when evdev or uinput access needs privileges
func requireRoot(what string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("%s requires root privileges for input device access\nPlease run with: sudo onekm %s", what, what)
	}
	return nil
}
