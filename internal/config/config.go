// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Transport  TransportConfig  `mapstructure:"transport"`
	Controller ControllerConfig `mapstructure:"controller"`
	Client     ClientConfig     `mapstructure:"client"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TransportConfig selects and configures the frame link
type TransportConfig struct {
	Kind          string `mapstructure:"kind"` // "tcp" or "serial"
	BindAddress   string `mapstructure:"bind_address"`
	Port          int    `mapstructure:"port"`
	ServerAddress string `mapstructure:"server_address"` // host:port the target dials
	SerialPort    string `mapstructure:"serial_port"`
	BaudRate      int    `mapstructure:"baud_rate"`
	SendQueue     int    `mapstructure:"send_queue"`
}

// ControllerConfig contains settings of the host that owns the keyboard and mouse
type ControllerConfig struct {
	ScreenWidth    int      `mapstructure:"screen_width"`
	ScreenHeight   int      `mapstructure:"screen_height"`
	EdgeTrigger    bool     `mapstructure:"edge_trigger"`
	TargetEdge     string   `mapstructure:"target_edge"` // left, right, top, bottom or any
	EdgeThreshold  int      `mapstructure:"edge_threshold"`
	UnblockMargin  int      `mapstructure:"unblock_margin"`
	Hotkey         string   `mapstructure:"hotkey"`
	HotkeyWindowMS int      `mapstructure:"hotkey_window_ms"`
	HotkeyPresses  int      `mapstructure:"hotkey_presses"`
	IdleFlushMS    int      `mapstructure:"idle_flush_ms"`
	BatchSize      int      `mapstructure:"batch_size"`
	HeartbeatSecs  int      `mapstructure:"heartbeat_seconds"`
	ExitOnCtrlC    bool     `mapstructure:"exit_on_ctrl_c"`
	EscapeReleases bool     `mapstructure:"escape_releases"`
	LocalResync    bool     `mapstructure:"local_resync"`
	Devices        []string `mapstructure:"devices"`
}

// ClientConfig contains target-side settings
type ClientConfig struct {
	ReconnectDelay  int    `mapstructure:"reconnect_delay"`
	ActivityTimeout int    `mapstructure:"activity_timeout"`
	DeviceName      string `mapstructure:"device_name"`
}

// RelayConfig contains settings of the USB gadget relay
type RelayConfig struct {
	HIDKeyboard string `mapstructure:"hid_keyboard"`
	HIDMouse    string `mapstructure:"hid_mouse"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"` // Enable/disable file logging
	LogLevel    string `mapstructure:"log_level"`    // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Transport: TransportConfig{
			Kind:          "tcp",
			BindAddress:   "0.0.0.0",
			Port:          24800,
			ServerAddress: "",
			SerialPort:    "/dev/ttyACM0",
			BaudRate:      115200,
			SendQueue:     64,
		},
		Controller: ControllerConfig{
			ScreenWidth:    1920,
			ScreenHeight:   1080,
			EdgeTrigger:    true,
			TargetEdge:     "any",
			EdgeThreshold:  5,
			UnblockMargin:  20,
			Hotkey:         "F12",
			HotkeyWindowMS: 2000,
			HotkeyPresses:  3,
			IdleFlushMS:    5,
			BatchSize:      20,
			HeartbeatSecs:  30,
			ExitOnCtrlC:    true,
			EscapeReleases: false,
			LocalResync:    true,
			Devices:        []string{},
		},
		Client: ClientConfig{
			ReconnectDelay:  1,
			ActivityTimeout: 60,
			DeviceName:      "onekm",
		},
		Relay: RelayConfig{
			HIDKeyboard: "/dev/hidg0",
			HIDMouse:    "/dev/hidg1",
		},
		Logging: LoggingConfig{
			FileLogging: true, // Enable file logging by default
			LogLevel:    "",   // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("onekm")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/onekm")

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/onekm", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "onekm"))
		}

		viper.AddConfigPath(".")
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit path that does not exist yet is fine too, config init creates it
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	return nil
}

// Set defaults - need to set individual fields for proper merging
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("transport.kind", d.Transport.Kind)
	viper.SetDefault("transport.bind_address", d.Transport.BindAddress)
	viper.SetDefault("transport.port", d.Transport.Port)
	viper.SetDefault("transport.server_address", d.Transport.ServerAddress)
	viper.SetDefault("transport.serial_port", d.Transport.SerialPort)
	viper.SetDefault("transport.baud_rate", d.Transport.BaudRate)
	viper.SetDefault("transport.send_queue", d.Transport.SendQueue)

	viper.SetDefault("controller.screen_width", d.Controller.ScreenWidth)
	viper.SetDefault("controller.screen_height", d.Controller.ScreenHeight)
	viper.SetDefault("controller.edge_trigger", d.Controller.EdgeTrigger)
	viper.SetDefault("controller.target_edge", d.Controller.TargetEdge)
	viper.SetDefault("controller.edge_threshold", d.Controller.EdgeThreshold)
	viper.SetDefault("controller.unblock_margin", d.Controller.UnblockMargin)
	viper.SetDefault("controller.hotkey", d.Controller.Hotkey)
	viper.SetDefault("controller.hotkey_window_ms", d.Controller.HotkeyWindowMS)
	viper.SetDefault("controller.hotkey_presses", d.Controller.HotkeyPresses)
	viper.SetDefault("controller.idle_flush_ms", d.Controller.IdleFlushMS)
	viper.SetDefault("controller.batch_size", d.Controller.BatchSize)
	viper.SetDefault("controller.heartbeat_seconds", d.Controller.HeartbeatSecs)
	viper.SetDefault("controller.exit_on_ctrl_c", d.Controller.ExitOnCtrlC)
	viper.SetDefault("controller.escape_releases", d.Controller.EscapeReleases)
	viper.SetDefault("controller.local_resync", d.Controller.LocalResync)
	viper.SetDefault("controller.devices", d.Controller.Devices)

	viper.SetDefault("client.reconnect_delay", d.Client.ReconnectDelay)
	viper.SetDefault("client.activity_timeout", d.Client.ActivityTimeout)
	viper.SetDefault("client.device_name", d.Client.DeviceName)

	viper.SetDefault("relay.hid_keyboard", d.Relay.HIDKeyboard)
	viper.SetDefault("relay.hid_mouse", d.Relay.HIDMouse)

	viper.SetDefault("logging.file_logging", d.Logging.FileLogging)
	viper.SetDefault("logging.log_level", d.Logging.LogLevel)
}

// Validate rejects values the controller cannot run with
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "tcp", "serial":
	default:
		return fmt.Errorf("invalid transport.kind %q (want tcp or serial)", c.Transport.Kind)
	}
	if c.Transport.Port < 0 || c.Transport.Port > 65535 {
		return fmt.Errorf("invalid transport.port: %d", c.Transport.Port)
	}
	if c.Controller.ScreenWidth <= 0 || c.Controller.ScreenHeight <= 0 {
		return fmt.Errorf("invalid screen size %dx%d", c.Controller.ScreenWidth, c.Controller.ScreenHeight)
	}
	if c.Controller.UnblockMargin <= c.Controller.EdgeThreshold {
		return fmt.Errorf("controller.unblock_margin (%d) must be larger than edge_threshold (%d)",
			c.Controller.UnblockMargin, c.Controller.EdgeThreshold)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		// If we can't create it (e.g., /etc/onekm needs sudo), provide helpful message
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// For root/sudo, prefer system config
	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/onekm/onekm.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/onekm/onekm.toml"
	}

	return filepath.Join(home, ".config", "onekm", "onekm.toml")
}
