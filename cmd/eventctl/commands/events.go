package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jaemin-s/eventsync/pkg/events"
)

func (c *CLI) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, _ := cmd.Flags().GetInt("page")
			perPage, _ := cmd.Flags().GetInt("per-page")
			return c.withClient(cmd, func(client Client) error {
				list, err := client.Events(cmd.Context(), events.ListParams{Page: page, PerPage: perPage})
				if err != nil {
					return err
				}
				return c.printList(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().IntP("page", "p", 0, "Page number (server default when 0)")
	cmd.Flags().IntP("per-page", "n", 0, "Page size (server default when 0)")

	return cmd
}

func (c *CLI) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(client Client) error {
				event, err := client.Event(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printEvent(cmd.OutOrStdout(), event)
			})
		},
	}
}

func (c *CLI) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			title, _ := cmd.Flags().GetString("title")
			organizer, _ := cmd.Flags().GetString("organizer")
			status, _ := cmd.Flags().GetString("status")

			input := events.CreateInput{Title: title, OrganizerID: organizer}
			if status != "" {
				input.Status = events.ParseStatus(status)
				if !input.Status.Creatable() {
					return fmt.Errorf("status %q cannot be used when creating", status)
				}
			}

			return c.withClient(cmd, func(client Client) error {
				event, err := client.Create(cmd.Context(), input)
				if err != nil {
					return err
				}
				return c.printEvent(cmd.OutOrStdout(), event)
			})
		},
	}

	cmd.Flags().StringP("title", "t", "", "Event title")
	cmd.Flags().StringP("organizer", "o", "", "Organizer id")
	cmd.Flags().StringP("status", "s", "", "Initial status (draft or published)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("organizer")

	return cmd
}

func (c *CLI) newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an event's title or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input events.UpdateInput
			if cmd.Flags().Changed("title") {
				title, _ := cmd.Flags().GetString("title")
				input.Title = &title
			}
			if cmd.Flags().Changed("status") {
				raw, _ := cmd.Flags().GetString("status")
				status := events.ParseStatus(raw)
				if !status.Valid() {
					return fmt.Errorf("unknown status %q", raw)
				}
				input.Status = &status
			}
			if input.Title == nil && input.Status == nil {
				return errors.New("nothing to update: pass --title or --status")
			}

			return c.withClient(cmd, func(client Client) error {
				event, err := client.Update(cmd.Context(), args[0], input)
				if err != nil {
					return err
				}
				return c.printEvent(cmd.OutOrStdout(), event)
			})
		},
	}

	cmd.Flags().StringP("title", "t", "", "New title")
	cmd.Flags().StringP("status", "s", "", "New status (draft, published or archived)")

	return cmd
}

func (c *CLI) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(client Client) error {
				res, err := client.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if c.asJSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", res.ID)
				return err
			})
		},
	}
}

func (c *CLI) printList(w io.Writer, list *events.EventList) error {
	if c.asJSON {
		return writeJSON(w, list)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tORGANIZER\tVERSION")
	for i := range list.Events {
		writeRow(tw, &list.Events[i])
	}
	if list.Total > 0 {
		fmt.Fprintf(tw, "\npage %d, %d per page, %d total\n", list.Page, list.PerPage, list.Total)
	}
	return tw.Flush()
}

func (c *CLI) printEvent(w io.Writer, event *events.Event) error {
	if c.asJSON {
		return writeJSON(w, event)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tORGANIZER\tVERSION")
	writeRow(tw, event)
	return tw.Flush()
}

func writeRow(w io.Writer, e *events.Event) {
	version := "-"
	if e.Metadata != nil {
		version = fmt.Sprintf("v%d", e.Metadata.Version)
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, strings.TrimSpace(e.Title), e.Status, e.OrganizerID, version)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
