package tools

import (
	"context"

	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/patch"
)

// ApplyPatchTool applies a context-anchored multi-file patch document,
// delegating the grammar and hunk-matching algorithm entirely to the patch
// package.
type ApplyPatchTool struct {
	baseDir string
}

func (t *ApplyPatchTool) Name() string { return "apply_patch" }
func (t *ApplyPatchTool) Description() string {
	return "Applies a patch in apply_patch format (*** Begin Patch / Add File / Update File / Delete File / *** End Patch) across one or more files."
}
func (t *ApplyPatchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"patch": map[string]interface{}{"type": "string"}},
		"required":   []string{"patch"},
	}
}

func (t *ApplyPatchTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	patchText, ok := args["patch"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'patch' argument"))
	}

	parsed, err := patch.Parse(patchText)
	if err != nil {
		return Fail(err)
	}
	changes, err := patch.NewApplier(t.baseDir).Apply(parsed)
	if err != nil {
		return Fail(err)
	}
	return Ok(patch.Summary(changes))
}
