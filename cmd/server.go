package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/input"
	"github.com/bnema/onekm/internal/ipc"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/network"
	"github.com/bnema/onekm/internal/server"
	"github.com/bnema/onekm/internal/termios"
	"github.com/bnema/onekm/internal/ui"
)

var (
	serverHeadless    bool
	serverListDevices bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the controller that owns the physical keyboard and mouse",
	Long: `Run onekm as the controller. Local keyboards and mice are read through evdev.
Pressing the hotkey (F12 by default) or pushing the cursor against a screen
edge grabs them and forwards every event to the target; pressing the hotkey
again or leaving through any edge returns control.

Pressing the hotkey three times within two seconds, or Ctrl+C while in
LOCAL, stops the controller.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntP("port", "p", 0, "TCP port to listen on")
	serverCmd.Flags().StringP("bind", "b", "", "Bind address")
	serverCmd.Flags().StringP("transport", "t", "", "Transport: tcp or serial")
	serverCmd.Flags().String("serial-port", "", "Serial device for the serial transport")
	serverCmd.Flags().String("hotkey", "", "Key that toggles LOCAL/REMOTE")
	serverCmd.Flags().BoolVar(&serverHeadless, "headless", false, "Run without the status bar")
	serverCmd.Flags().BoolVar(&serverListDevices, "list-devices", false, "List keyboards and mice and exit")

	// Bind flags to viper
	_ = viper.BindPFlag("transport.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("transport.bind_address", serverCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("transport.kind", serverCmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("transport.serial_port", serverCmd.Flags().Lookup("serial-port"))
	_ = viper.BindPFlag("controller.hotkey", serverCmd.Flags().Lookup("hotkey"))
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := requireRoot("server"); err != nil {
		return err
	}

	if serverListDevices {
		paths, err := input.FindDevices()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tNAME\tCONFIG PATH")
		for _, p := range paths {
			info := input.DescribeDevice(p)
			fmt.Fprintf(w, "%s\t%s\t%s\n", info.Path, info.Name, info.ConfigPath())
		}
		return w.Flush()
	}

	cfg := config.Get()
	headless := serverHeadless || !termios.IsTerminal(os.Stdout)

	// Bubble Tea owns the terminal, so logs go to a file
	if !headless && cfg.Logging.FileLogging {
		logFile, err := logger.SetupFileLogging("CONTROLLER")
		if err != nil {
			return fmt.Errorf("failed to setup file logging: %w", err)
		}
		defer logFile.Close()
	}

	opts, err := server.OptionsFromConfig(&cfg.Controller)
	if err != nil {
		return fmt.Errorf("invalid controller config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := input.NewEvdevSource(cfg.Controller.Devices)
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("failed to open input devices: %w", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warnf("Failed to close input devices: %v", err)
		}
	}()

	var local server.LocalReleaser
	if opts.LocalResync {
		kbd, err := input.NewVirtualKeyboard(cfg.Client.DeviceName + "-resync")
		if err != nil {
			logger.Warnf("Local key resync disabled: %v", err)
		} else {
			defer kbd.Close()
			local = kbd
		}
	}

	session := server.NewSession(opts, source, local)
	// Runs again after the controller loop in case setup below fails first
	defer session.Shutdown()

	sender := network.NewSender(nil, cfg.Transport.SendQueue)
	defer sender.Close()

	links, listen, stopLink, err := startLink(ctx, cfg, sender)
	if err != nil {
		return err
	}
	defer func() {
		// flush the final frames before the link goes away
		_ = sender.Close()
		stopLink()
	}()

	controller := server.NewController(session, source.Events(), sender, links, server.LoopOptionsFromConfig(cfg))

	if ipcServer, err := ipc.NewSocketServer(controller); err != nil {
		logger.Warnf("IPC disabled: %v", err)
	} else if err := ipcServer.Start(); err != nil {
		logger.Warnf("IPC disabled: %v", err)
	} else {
		defer ipcServer.Stop()
	}

	server.NewEmergencyRelease(controller).Start(ctx)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Infof("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Infof("Controller ready on %s, hotkey %s", listen, cfg.Controller.Hotkey)

	if headless {
		err = runHeadless(ctx, controller)
	} else {
		err = runWithStatusBar(ctx, cancel, controller, cfg.Controller.Hotkey, listen)
	}

	if err != nil {
		return fmt.Errorf("controller stopped: %w", err)
	}
	if reason := controller.Status().ExitReason; reason != "" {
		logger.Infof("Controller stopped (%s)", reason)
	}
	return nil
}

// startLink brings up the configured transport and attaches it to the sender
func startLink(ctx context.Context, cfg *config.Config, sender *network.Sender) (<-chan network.LinkState, string, func(), error) {
	switch cfg.Transport.Kind {
	case "serial":
		port, err := network.OpenSerial(cfg.Transport.SerialPort, cfg.Transport.BaudRate)
		if err != nil {
			return nil, "", nil, err
		}
		sender.SetWriter(port)
		listen := fmt.Sprintf("%s@%d", cfg.Transport.SerialPort, cfg.Transport.BaudRate)
		// the sender closes the port itself after a write error
		return nil, listen, func() { _ = port.Close() }, nil

	default:
		srv := network.NewServer(cfg.Transport.BindAddress, cfg.Transport.Port)
		if err := srv.Start(ctx); err != nil {
			return nil, "", nil, fmt.Errorf("failed to start listener: %w", err)
		}
		links := make(chan network.LinkState, 4)
		go srv.Serve(ctx, sender, links)
		return links, srv.Address(), srv.Stop, nil
	}
}

func runHeadless(ctx context.Context, controller *server.Controller) error {
	// Keys typed while LOCAL would otherwise pile up in the shell
	state, err := termios.DisableEcho(os.Stdin)
	switch {
	case err == nil:
		defer func() {
			if err := state.Restore(); err != nil {
				logger.Warnf("Failed to restore terminal: %v", err)
			}
		}()
	case errors.Is(err, termios.ErrNotTerminal):
	default:
		logger.Warnf("Could not disable terminal echo: %v", err)
	}

	controller.OnStatusChange(func(st ipc.Status) {
		logger.Debugf("Status: remote=%v connected=%v sent=%d dropped=%d", st.Remote, st.Connected, st.Sent, st.Dropped)
	})
	return controller.Run(ctx)
}

func runWithStatusBar(ctx context.Context, cancel context.CancelFunc, controller *server.Controller, hotkey, listen string) error {
	model := ui.NewStatusModel(hotkey, listen, cancel)
	p := tea.NewProgram(model)

	logger.SetUINotifier(func(level, message string) {
		p.Send(ui.LogMsg{Entry: ui.LogEntry{Timestamp: time.Now(), Level: level, Message: message}})
	})
	defer logger.SetUINotifier(nil)

	controller.OnStatusChange(func(st ipc.Status) {
		p.Send(ui.StatusMsg{Status: st})
	})

	runErr := make(chan error, 1)
	go func() {
		runErr <- controller.Run(ctx)
		p.Send(ui.QuitRequestedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		logger.Errorf("Status bar failed: %v", err)
	}
	cancel()
	return <-runErr
}
