// Package gateway implements the gateway CLI commands: foreground
// operation plus the daemon lifecycle (start, stop, restart, status).
package gateway

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
	"github.com/nestor-bot/nestor/pkg/daemon"
)

func NewGatewayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Run or manage the nestor gateway",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runGateway(debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newStartCommand(),
		newStopCommand(),
		newRestartCommand(),
		newStatusCommand(),
	)

	return cmd
}

func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the gateway in the background",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return startDaemon()
		},
	}
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background gateway",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return stopDaemon()
		},
	}
}

func newRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background gateway",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := stopDaemon(); err != nil {
				fmt.Println(err)
			}
			return startDaemon()
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the background gateway status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return showStatus()
		},
	}
}

func newDaemon() (*daemon.Daemon, error) {
	cfg, paths, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	return daemon.New(cfg.EffectiveStateDir(paths), execPath, []string{"gateway"}), nil
}

func startDaemon() error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	// Give the child a moment to fail fast on a bad config or a port
	// already in use, so the operator sees it here instead of in logs.
	time.Sleep(500 * time.Millisecond)
	status := d.Status()
	if !status.Running {
		return fmt.Errorf("gateway exited immediately, see %s", status.LogFile)
	}

	fmt.Println("Gateway started")
	fmt.Printf("Logs: %s\n", status.LogFile)
	return nil
}

func stopDaemon() error {
	d, err := newDaemon()
	if err != nil {
		return err
	}
	if err := d.Stop(); err != nil {
		return err
	}
	fmt.Println("Gateway stopped")
	return nil
}

func showStatus() error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	status := d.Status()
	if !status.Running {
		fmt.Println("Gateway is not running")
		return nil
	}
	fmt.Println("Gateway is running")
	fmt.Printf("  PID:  %d\n", status.PID)
	fmt.Printf("  Logs: %s\n", status.LogFile)
	return nil
}
