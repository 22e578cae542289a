// Package sessions implements the session management CLI.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
)

const requestTimeout = 10 * time.Second

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage gateway chat sessions",
	}

	cmd.AddCommand(
		newListCommand(),
		newUseCommand(),
	)

	return cmd
}

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return listSessions(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of sessions to show")
	return cmd
}

func newUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use <session-key>",
		Short: "Make a session the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return useSession(args[0])
		},
	}
}

func listSessions(limit int) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	resp, err := tr.ListSessions(ctx, limit)
	if err != nil {
		return err
	}

	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	fmt.Printf("%-2s %-20s %-8s %s\n", "", "KEY", "MESSAGES", "UPDATED")
	for _, sess := range resp.Sessions {
		marker := " "
		if sess.Active {
			marker = "*"
		}
		fmt.Printf("%-2s %-20s %-8d %s\n", marker, sess.SessionKey, sess.MessageCount, sess.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func useSession(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tr, err := internal.DialGateway(ctx)
	if err != nil {
		return err
	}
	defer tr.Close()

	if err := tr.SetActiveSessionKey(ctx, key); err != nil {
		return err
	}
	fmt.Printf("Active session is now %s\n", key)
	return nil
}
