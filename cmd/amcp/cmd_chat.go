package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/amcp-dev/amcp/agent/terminal"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var opts localAgentOptions
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat [initial prompt]",
		Short: "Start or resume a conversational session",
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL, _ := cmd.Flags().GetString("server")
			initialPrompt := strings.Join(args, " ")

			if serverURL == "" {
				return runLocalChat(cmd.Context(), opts, initialPrompt)
			}
			return runRemoteChat(cmd.Context(), serverURL, sessionID, opts, initialPrompt)
		},
	}

	cmd.Flags().StringVar(&opts.sessionName, "session", "", "session name to create or use (local mode)")
	cmd.Flags().StringVar(&opts.resumeName, "resume", "", "resume a local session by name")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "execution mode: 'auto' or 'prompt'")
	cmd.Flags().StringVar(&opts.toolset, "toolset", "", "toolset to use (defaults to 'default')")
	cmd.Flags().StringVar(&opts.toolVerbosity, "tool-verbosity", "", "tool verbosity: 'none', 'info', or 'all'")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "existing server-side session id (remote mode; a new one is created if omitted)")
	return cmd
}

func runLocalChat(ctx context.Context, opts localAgentOptions, initialPrompt string) error {
	a, sess, err := buildLocalAgent(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Session: %s\n", sess.ID)
	term := terminal.New(a)
	return term.Run(ctx, initialPrompt)
}

func runRemoteChat(ctx context.Context, serverURL, sessionID string, opts localAgentOptions, initialPrompt string) error {
	client := newAPIClient(serverURL)

	if sessionID == "" {
		var created struct {
			ID string `json:"id"`
		}
		req := map[string]string{"agent_name": opts.toolset}
		if err := client.post("/api/v1/sessions", req, &created); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		sessionID = created.ID
		fmt.Printf("Session: %s\n", sessionID)
	}

	if initialPrompt == "" {
		fmt.Println("amcp is ready. Type your prompt (Ctrl-D to exit).")
	}

	if initialPrompt != "" {
		if err := streamPrompt(ctx, client, sessionID, initialPrompt); err != nil {
			return err
		}
	}

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			break
		}
		line := stdin.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := streamPrompt(ctx, client, sessionID, line); err != nil {
			fmt.Println("error:", err)
		}
	}
	return nil
}

// streamPrompt posts a prompt and reads the SSE response, printing the
// content of each event whose payload carries one (the completed assistant
// message). Message chunk events carry a delta instead and are not printed,
// so the reply appears once it is complete rather than incrementally.
func streamPrompt(ctx context.Context, client *apiClient, sessionID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	req, err := httpRequest(ctx, client.baseURL+"/api/v1/sessions/"+sessionID+"/prompt/stream", body)
	if err != nil {
		return err
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type    string                 `json:"type"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		if content, ok := ev.Payload["content"].(string); ok && content != "" {
			fmt.Println(content)
		}
	}
	return nil
}
