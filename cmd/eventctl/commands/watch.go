package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/eventsync"
)

func (c *CLI) newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the event list and reprint it whenever the server reports a change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return c.withClient(cmd, func(client Client) error {
				list, err := client.Events(ctx, events.ListParams{})
				if err != nil {
					return err
				}
				if err := c.printList(out, list); err != nil {
					return err
				}

				err = client.Follow(ctx, func(msg eventsync.ChangeMessage) {
					fmt.Fprintf(out, "\n%s %s\n", msg.Event, msg.Data.ID)
					list, err := client.Events(ctx, events.ListParams{})
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "refetch failed: %v\n", err)
						return
					}
					_ = c.printList(out, list)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
