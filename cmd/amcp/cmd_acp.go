package main

import (
	"bufio"
	"os"

	"github.com/amcp-dev/amcp/agent/acp"
	"github.com/spf13/cobra"
)

func newACPCmd() *cobra.Command {
	var opts localAgentOptions
	var trace bool

	cmd := &cobra.Command{
		Use:   "acp",
		Short: "Run in Agent Client Protocol mode over stdio",
		Long: `acp speaks the Agent Client Protocol over stdin/stdout, for editors
and other tools that spawn amcp as a subprocess rather than talking to a
running amcpd server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := buildLocalAgent(cmd.Context(), opts)
			if err != nil {
				return err
			}
			in := bufio.NewReader(os.Stdin)
			out := bufio.NewWriter(os.Stdout)
			return acp.Run(cmd.Context(), a, in, out, &trace)
		},
	}

	cmd.Flags().StringVar(&opts.sessionName, "session", "", "session name to create or use")
	cmd.Flags().StringVar(&opts.resumeName, "resume", "", "resume a session by name")
	cmd.Flags().StringVar(&opts.mode, "mode", "auto", "execution mode: 'auto' or 'prompt'")
	cmd.Flags().StringVar(&opts.toolset, "toolset", "", "toolset to use (defaults to 'default')")
	cmd.Flags().StringVar(&opts.toolVerbosity, "tool-verbosity", "", "tool verbosity: 'none', 'info', or 'all'")
	cmd.Flags().BoolVar(&trace, "trace", false, "enable execution tracing to troubleshoot issues")
	return cmd
}
