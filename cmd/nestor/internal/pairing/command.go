// Package pairing implements the pairing CLI: listing pending requests
// and approving or rejecting their codes.
package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
)

const requestTimeout = 10 * time.Second

func NewPairingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage channel pairing requests",
	}

	cmd.AddCommand(
		newListCommand(),
		newApproveCommand(),
		newRejectCommand(),
	)

	return cmd
}

func newListCommand() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending pairing requests",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return listPairings(channel)
		},
	}

	cmd.Flags().StringVarP(&channel, "channel", "c", "", "Only show requests from this channel")
	return cmd
}

func newApproveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <channel> <code>",
		Short: "Approve a pairing code and grant access",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return approvePairing(args[0], args[1])
		},
	}
}

func newRejectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <channel> <code>",
		Short: "Reject a pairing code",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return rejectPairing(args[0], args[1])
		},
	}
}

func listPairings(channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	resp, err := tr.PairingList(ctx, channel)
	if err != nil {
		return err
	}

	if len(resp.Requests) == 0 {
		fmt.Println("No pending pairing requests")
		return nil
	}

	fmt.Printf("%-12s %-24s %-10s %s\n", "CHANNEL", "IDENTITY", "CODE", "EXPIRES")
	for _, req := range resp.Requests {
		fmt.Printf("%-12s %-24s %-10s %s\n", req.Channel, req.Identity, req.Code, req.ExpiresAt)
	}
	return nil
}

func approvePairing(channel, code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	if err := tr.PairingApprove(ctx, channel, code); err != nil {
		return err
	}
	fmt.Printf("Approved pairing code %s on %s\n", code, channel)
	return nil
}

func rejectPairing(channel, code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	if err := tr.PairingReject(ctx, channel, code); err != nil {
		return err
	}
	fmt.Printf("Rejected pairing code %s on %s\n", code, channel)
	return nil
}
