// Command amcp is the CLI client for amcp: it can either drive an agent
// directly in this process (the teacher's original single-binary mode,
// still useful for editor integrations that spawn a subprocess) or talk to
// a running amcpd server over HTTP/WS for multi-client, multi-session use.
package main

import (
	"fmt"
	"os"

	"github.com/amcp-dev/amcp/telemetry"
	"github.com/spf13/cobra"
)

const version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var shutdownTracing telemetry.Shutdown

	root := &cobra.Command{
		Use:   "amcp",
		Short: "amcp is the coding assistant runtime's command-line client",
		Long: `amcp drives agent sessions either locally (the default when no
--server is given) or against a running amcpd server.

Available subcommands:
  chat      Start or resume a conversational session
  acp       Run in Agent Client Protocol mode over stdio
  sessions  List, inspect, and delete server-side sessions
  tools     List the tools available to a session`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			trace, err := cmd.Flags().GetBool("trace")
			if err != nil {
				return err
			}
			shutdownTracing, err = telemetry.Init(cmd.Context(), "amcp", version, trace)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(cmd.Context())
		},
	}
	root.PersistentFlags().String("server", "", "amcpd server base URL (e.g. http://127.0.0.1:4096); local mode if unset")
	root.PersistentFlags().Bool("trace", false, "emit OpenTelemetry spans for local agent turns to stdout")

	root.AddCommand(newChatCmd())
	root.AddCommand(newACPCmd())
	root.AddCommand(newSessionsCmd())
	root.AddCommand(newToolsCmd())
	return root
}
