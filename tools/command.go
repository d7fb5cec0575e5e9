package tools

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/amcp-dev/amcp/errors"
)

// BashTool runs a shell command through the allow-listed pattern set. Its
// permission posture in practice is governed by the permission engine, not
// here, but the allow-list is an extra static guard carried from the
// teacher's command tool.
type BashTool struct {
	allowedCommands []string
}

func (t *BashTool) Name() string { return "bash" }
func (t *BashTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a shell command."
	}
	var b strings.Builder
	b.WriteString("Executes a shell command. Allowed command patterns:\n")
	for _, cmd := range t.allowedCommands {
		fmt.Fprintf(&b, "- %s\n", cmd)
	}
	return b.String()
}
func (t *BashTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	command, ok := args["command"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'command' argument"))
	}

	if len(t.allowedCommands) > 0 {
		allowed, err := isCommandAllowed(command, t.allowedCommands)
		if err != nil {
			return Fail(err)
		}
		if !allowed {
			return Fail(errors.New("command '%s' is not in the list of allowed commands", command))
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Fail(errors.Wrapf(err, "command execution failed. Output:\n%s", string(output)))
	}
	return Ok(fmt.Sprintf("Command executed successfully. Output:\n%s", string(output)))
}

// isCommandAllowed checks if a command matches one of the allow-list
// patterns, treated as regexes with a literal-string fallback.
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if strings.TrimSpace(command) == "" {
		return false, nil
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
