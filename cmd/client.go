package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/onekm/internal/client"
	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/input"
	"github.com/bnema/onekm/internal/logger"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the target that injects received input through uinput",
	Long: `Run onekm on the target machine. The client dials the controller, decodes
frames and replays them through a virtual uinput keyboard and mouse. Every
key and button it holds is released when the controller switches back to
LOCAL or the link drops.

Emergency release: send SIGUSR1 or create /tmp/onekm-client-release.`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringP("host", "H", "", "Controller address (host:port)")

	// Bind flags to viper
	_ = viper.BindPFlag("transport.server_address", clientCmd.Flags().Lookup("host"))
}

func runClient(cmd *cobra.Command, args []string) error {
	if err := requireRoot("client"); err != nil {
		return err
	}

	cfg := config.Get()
	addr := cfg.Transport.ServerAddress
	if addr == "" {
		return fmt.Errorf("no controller address specified (use --host or set transport.server_address)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	injector, err := input.NewInjector(cfg.Client.DeviceName)
	if err != nil {
		return fmt.Errorf("failed to create virtual devices: %w", err)
	}
	defer func() {
		if err := injector.Close(); err != nil {
			logger.Errorf("Failed to close virtual devices: %v", err)
		}
	}()

	receiver := client.NewInputReceiver(addr, client.InjectorSink{Injector: injector},
		time.Duration(cfg.Client.ReconnectDelay)*time.Second)

	emergency := client.NewEmergencyRelease(receiver,
		time.Duration(cfg.Client.ActivityTimeout)*time.Second,
		func(reason string) {
			if err := receiver.Release(); err != nil {
				logger.Errorf("[CLIENT EMERGENCY] Release failed: %v", err)
			}
		})
	receiver.OnActivity(emergency.UpdateActivity)
	receiver.OnStatusChange(func(st client.ControlStatus) {
		if st.Connected {
			emergency.UpdateActivity()
		}
	})
	emergency.Start(ctx)

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

	logger.Infof("Connecting to controller at %s", addr)
	if err := receiver.Run(ctx); err != nil {
		return err
	}

	applied, skipped := receiver.Stats()
	logger.Infof("Client stopped (%d frames applied, %d skipped)", applied, skipped)
	return nil
}
