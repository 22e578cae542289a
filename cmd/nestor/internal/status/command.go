// Package status implements the top-level status command: daemon state
// plus a live health probe against the gateway.
package status

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
	"github.com/nestor-bot/nestor/pkg/daemon"
)

const healthTimeout = 5 * time.Second

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, paths, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Config:  %s\n", paths.ConfigPath)
	fmt.Printf("Gateway: %s\n", cfg.Gateway.URL())

	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	d := daemon.New(cfg.EffectiveStateDir(paths), execPath, nil)
	st := d.Status()
	if st.Running {
		fmt.Printf("Daemon:  running (PID %d)\n", st.PID)
	} else {
		fmt.Println("Daemon:  not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		fmt.Println("Health:  unreachable")
		return nil
	}
	defer tr.Close()

	if tr.RequestHealth(ctx, healthTimeout) {
		fmt.Println("Health:  ok")
	} else {
		fmt.Println("Health:  not responding")
	}
	return nil
}
