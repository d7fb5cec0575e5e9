package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer(cmd)
			if err != nil {
				return err
			}
			path := "/api/v1/tools"
			if sessionID != "" {
				path += "?session_id=" + sessionID
			}
			var resp struct {
				Tools []struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"tools"`
			}
			if err := client.get(path, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, t := range resp.Tools {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session whose active toolset to list")
	return cmd
}
