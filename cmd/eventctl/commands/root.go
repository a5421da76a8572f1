// Package commands implements the eventctl command line.
package commands

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaemin-s/eventsync/pkg/events"
	"github.com/jaemin-s/eventsync/pkg/eventsync"
)

// Client is the events surface the commands drive. eventsync.Client backs it in production.
type Client interface {
	Events(ctx context.Context, params events.ListParams) (*events.EventList, error)
	Event(ctx context.Context, id string) (*events.Event, error)
	Create(ctx context.Context, input events.CreateInput) (*events.Event, error)
	Update(ctx context.Context, id string, input events.UpdateInput) (*events.Event, error)
	Delete(ctx context.Context, id string) (*events.DeleteResult, error)
	// Follow applies live changes to the cache and calls onChange for each until ctx ends.
	Follow(ctx context.Context, onChange func(eventsync.ChangeMessage)) error
}

// ConnectOptions are the global flags.
type ConnectOptions struct {
	ConfigPath string
	BaseURL    string
	Token      string
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	UserID string
	Name   string
	Scopes []string
	TTL    time.Duration
}

// Application wires commands to the outside world.
type Application interface {
	Connect(ctx context.Context, opts ConnectOptions) (Client, func(), error)
	MintToken(opts ConnectOptions, req TokenRequest) (string, error)
}

// CLI represents the eventctl command line interface.
type CLI struct {
	app     Application
	opts    ConnectOptions
	asJSON  bool
	rootCmd *cobra.Command
}

// New creates a CLI over a.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Read and write events through the synchronised cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{app: a, rootCmd: rootCmd}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.opts.ConfigPath, "config", "", "Path to configuration directory")
	flags.StringVar(&c.opts.BaseURL, "base-url", "", "Events API base URL (overrides client.base_url)")
	flags.StringVar(&c.opts.Token, "token", "", "Bearer token (overrides client.token)")
	flags.BoolVar(&c.asJSON, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newGetCmd())
	rootCmd.AddCommand(c.newCreateCmd())
	rootCmd.AddCommand(c.newUpdateCmd())
	rootCmd.AddCommand(c.newDeleteCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newTokenCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// withClient connects, runs fn and releases the connection.
func (c *CLI) withClient(cmd *cobra.Command, fn func(Client) error) error {
	client, closeFn, err := c.app.Connect(cmd.Context(), c.opts)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(client)
}
