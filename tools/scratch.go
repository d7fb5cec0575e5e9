package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/amcp-dev/amcp/errors"
)

// ThinkTool is a no-op scratchpad: it lets the model externalize reasoning
// in a dedicated turn without any side effect, which keeps long chains of
// thought out of the final answer while still being visible in the
// transcript.
type ThinkTool struct{}

func (t *ThinkTool) Name() string { return "think" }
func (t *ThinkTool) Description() string {
	return "Records a reasoning note with no side effects. Use to plan before acting."
}
func (t *ThinkTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"thought": map[string]interface{}{"type": "string"}},
		"required":   []string{"thought"},
	}
}
func (t *ThinkTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	thought, _ := args["thought"].(string)
	return Ok(fmt.Sprintf("Noted: %s", thought))
}

// todoStore is an in-process, per-registry scratch list. It is not
// persisted; it exists only to give the model a place to track a plan
// across tool calls within a single turn or session lifetime.
type todoStore struct {
	mu    sync.Mutex
	items []string
}

func newTodoStore() *todoStore { return &todoStore{} }

// TodoTool manages a simple ordered task list the model can read and
// rewrite, mirroring the reference implementation's no-op planning aid.
type TodoTool struct {
	store *todoStore
}

func (t *TodoTool) Name() string { return "todo" }
func (t *TodoTool) Description() string {
	return "Reads or replaces the session's todo list. Action is 'read' or 'write'."
}
func (t *TodoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{"type": "string", "enum": []string{"read", "write"}},
			"items":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []string{"action"},
	}
}

func (t *TodoTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	action, _ := args["action"].(string)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	switch action {
	case "write":
		raw, ok := args["items"].([]interface{})
		if !ok {
			return Fail(errors.New("missing or invalid 'items' argument for write"))
		}
		items := make([]string, 0, len(raw))
		for _, it := range raw {
			if s, ok := it.(string); ok {
				items = append(items, s)
			}
		}
		t.store.items = items
		return Ok(fmt.Sprintf("Todo list updated with %d items.", len(items)))
	case "read", "":
		if len(t.store.items) == 0 {
			return Ok("(empty)")
		}
		var b strings.Builder
		for i, item := range t.store.items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item)
		}
		return Ok(b.String())
	default:
		return Fail(errors.New("unknown action '%s', expected 'read' or 'write'", action))
	}
}
