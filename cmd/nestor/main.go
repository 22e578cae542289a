package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
	gatewaycmd "github.com/nestor-bot/nestor/cmd/nestor/internal/gateway"
	pairingcmd "github.com/nestor-bot/nestor/cmd/nestor/internal/pairing"
	sessionscmd "github.com/nestor-bot/nestor/cmd/nestor/internal/sessions"
	statuscmd "github.com/nestor-bot/nestor/cmd/nestor/internal/status"
)

func main() {
	var profile string

	root := &cobra.Command{
		Use:           "nestor",
		Short:         "Personal assistant gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if profile != "" {
				return os.Setenv("NESTOR_PROFILE", profile)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&profile, "profile", "", "Use a named state profile")

	root.AddCommand(
		gatewaycmd.NewGatewayCommand(),
		pairingcmd.NewPairingCommand(),
		sessionscmd.NewSessionsCommand(),
		statuscmd.NewStatusCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("nestor %s\n", internal.FormatVersion())
			build, goVer := internal.FormatBuildInfo()
			if build != "" {
				fmt.Printf("  built:  %s\n", build)
			}
			fmt.Printf("  go:     %s\n", goVer)
		},
	}
}
