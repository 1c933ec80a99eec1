// Package commands implements the huebridgectl command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huebridged/huebridged/pkg/client"
)

// clientContextKey keys the API client in the command context.
type clientContextKey struct{}

// WithClient stores the API client for commands to retrieve.
func WithClient(ctx context.Context, c *client.Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

func clientFrom(cmd *cobra.Command) *client.Client {
	return cmd.Context().Value(clientContextKey{}).(*client.Client)
}

// NewRootCommand creates the root command
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "huebridgectl",
		Short: "Control bridged lights",
	}

	// Add global flags
	cmd.PersistentFlags().String("server", "", "huebridged API address (default http://127.0.0.1:8686)")

	// Add commands
	cmd.AddCommand(newVersionCommand(version, commit, buildDate))
	cmd.AddCommand(NewLightCommand())

	return cmd
}

// newVersionCommand creates the version command
func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Client:\n")
			fmt.Printf("  Version:    %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)

			// Try to query the daemon for its version
			v, err := clientFrom(cmd).GetVersion(cmd.Context())
			if err != nil {
				fmt.Printf("\nDaemon: not reachable\n")
				return
			}
			fmt.Printf("\nDaemon:\n")
			fmt.Printf("  Version:    %s\n", v.Version)
			fmt.Printf("  Commit:     %s\n", v.Commit)
			fmt.Printf("  Build Date: %s\n", v.Date)
		},
	}
}
