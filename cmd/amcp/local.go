package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amcp-dev/amcp/agent"
	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/llm"
	"github.com/amcp-dev/amcp/session"
)

// localAgentOptions bundles the flags chat and acp share when running
// against an in-process agent instead of a remote amcpd.
type localAgentOptions struct {
	sessionName   string
	resumeName    string
	mode          string
	toolset       string
	toolVerbosity string
}

// buildLocalAgent loads config, resolves or creates the named session, and
// constructs the Agent, mirroring the teacher's single-binary startup path.
func buildLocalAgent(ctx context.Context, opts localAgentOptions) (*agent.Agent, *session.Session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	var sess *session.Session
	sessionName := opts.sessionName
	mode, toolset, toolVerbosity := opts.mode, opts.toolset, opts.toolVerbosity

	if opts.resumeName != "" {
		sessionName = opts.resumeName
		sess, err = session.Load(sessionName)
		if err != nil {
			return nil, nil, fmt.Errorf("resuming session %q: %w", sessionName, err)
		}
		if mode == "" {
			mode = sess.Mode
		}
		if toolset == "" {
			toolset = sess.Toolset
		}
		if toolVerbosity == "" {
			toolVerbosity = sess.ToolVerbosity
		}
	} else {
		if sessionName == "" {
			sessionName = defaultSessionName()
		}
		sess, err = session.New(sessionName)
		if err != nil {
			return nil, nil, fmt.Errorf("creating session %q: %w", sessionName, err)
		}
	}

	if mode == "" {
		mode = "prompt"
	}
	if toolset == "" {
		toolset = "default"
	}
	if toolVerbosity == "" {
		toolVerbosity = "none"
	}

	sess.Mode = mode
	sess.Toolset = toolset
	sess.ToolVerbosity = toolVerbosity
	if err := sess.Save(); err != nil {
		return nil, nil, fmt.Errorf("saving session %q: %w", sessionName, err)
	}

	var opMode agent.Mode
	switch mode {
	case "auto":
		opMode = agent.ModeAuto
	case "prompt":
		opMode = agent.ModePrompt
	default:
		return nil, nil, fmt.Errorf("invalid mode %q: must be 'auto' or 'prompt'", mode)
	}

	var verbosity agent.ToolVerbosity
	switch toolVerbosity {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		return nil, nil, fmt.Errorf("invalid tool verbosity %q: must be 'none', 'info', or 'all'", toolVerbosity)
	}

	client, err := llm.NewClient(ctx, cfg.LLMClient, cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing %s client: %w", cfg.LLMClient, err)
	}

	a, err := agent.New(cfg, sess, toolset, opMode, client, verbosity)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing agent: %w", err)
	}
	return a, sess, nil
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "amcp"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
