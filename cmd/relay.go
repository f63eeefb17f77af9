package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/onekm/internal/client"
	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/network"
)

var relayListPorts bool

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward frames to a USB HID gadget",
	Long: `Run onekm as a HID bridge. Frames arriving over a serial line (or TCP) are
merged and written as boot protocol reports to the USB gadget devices, so the
host on the other end of the USB cable sees an ordinary keyboard and mouse.`,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringP("transport", "t", "", "Transport: tcp or serial")
	relayCmd.Flags().String("serial-port", "", "Serial device to read frames from")
	relayCmd.Flags().Int("baud", 0, "Serial baud rate")
	relayCmd.Flags().StringP("host", "H", "", "Controller address for the tcp transport")
	relayCmd.Flags().BoolVar(&relayListPorts, "list-ports", false, "List serial ports and exit")

	// Bind flags to viper
	_ = viper.BindPFlag("transport.kind", relayCmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("transport.serial_port", relayCmd.Flags().Lookup("serial-port"))
	_ = viper.BindPFlag("transport.baud_rate", relayCmd.Flags().Lookup("baud"))
	_ = viper.BindPFlag("transport.server_address", relayCmd.Flags().Lookup("host"))
}

func runRelay(cmd *cobra.Command, args []string) error {
	if relayListPorts {
		ports, err := network.SerialPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	}

	cfg := config.Get()

	gadget, err := client.OpenGadget(cfg.Relay.HIDKeyboard, cfg.Relay.HIDMouse)
	if err != nil {
		return err
	}
	defer func() {
		if err := gadget.Close(); err != nil {
			logger.Errorf("Failed to close HID gadget: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// outlives ctx so the release queued by the receiver on shutdown reaches the host
	writeCtx, stopWriting := context.WithCancel(context.Background())
	defer stopWriting()

	coalescer := client.NewCoalescer(gadget, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		coalescer.Run(writeCtx)
	}()

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

	delay := time.Duration(cfg.Client.ReconnectDelay) * time.Second
	receiver := client.NewInputReceiver(cfg.Transport.ServerAddress, coalescer, delay)

	if cfg.Transport.Kind == "serial" {
		err = serveSerial(ctx, receiver, cfg.Transport.SerialPort, cfg.Transport.BaudRate, delay)
	} else {
		if cfg.Transport.ServerAddress == "" {
			return fmt.Errorf("no controller address specified (use --host or set transport.server_address)")
		}
		err = receiver.Run(ctx)
	}

	cancel()
	stopWriting()
	<-done
	logger.Infof("Relay stopped (%d reports written, %d dropped)", coalescer.Reports(), coalescer.Dropped())
	return err
}

// serveSerial reads frames from a UART, reopening it with backoff when it goes away
func serveSerial(ctx context.Context, receiver *client.InputReceiver, portName string, baud int, delay time.Duration) error {
	backoff := network.Backoff{Initial: delay, Max: 30 * time.Second}
	for {
		port, err := network.OpenSerial(portName, baud)
		if err == nil {
			backoff.Reset()
			err = receiver.Serve(ctx, port, portName)
			_ = port.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Warnf("Serial link %s failed: %v", portName, err)
		}

		wait := backoff.Next()
		logger.Infof("Reopening %s in %v", portName, wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
