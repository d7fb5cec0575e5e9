package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, inspect, and delete server-side sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsGetCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func requireServer(cmd *cobra.Command) (*apiClient, error) {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		return nil, fmt.Errorf("--server is required for this command")
	}
	return newAPIClient(serverURL), nil
}

type sessionResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AgentName    string `json:"agent_name"`
	Cwd          string `json:"cwd"`
	MessageCount int    `json:"message_count"`
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				Sessions []sessionResponse `json:"sessions"`
				Total    int               `json:"total"`
			}
			if err := client.get("/api/v1/sessions", &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tAGENT\tMESSAGES\tCWD")
			for _, s := range resp.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Status, s.AgentName, s.MessageCount, s.Cwd)
			}
			return w.Flush()
		},
	}
}

func newSessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one session's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer(cmd)
			if err != nil {
				return err
			}
			var resp sessionResponse
			if err := client.get("/api/v1/sessions/"+args[0], &resp); err != nil {
				return err
			}
			fmt.Printf("ID:       %s\nStatus:   %s\nAgent:    %s\nCwd:      %s\nMessages: %d\n",
				resp.ID, resp.Status, resp.AgentName, resp.Cwd, resp.MessageCount)
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer(cmd)
			if err != nil {
				return err
			}
			if err := client.delete("/api/v1/sessions/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted session %s\n", args[0])
			return nil
		},
	}
}
