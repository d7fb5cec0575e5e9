package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/errors"
)

// ReadFileTool reads the entire content of a file.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Reads the entire content of a file." }
func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	path, ok := args["path"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'path' argument"))
	}

	hidden, err := isPathRestricted(path, t.fsAccess.Hidden)
	if err != nil {
		return Fail(err)
	}
	if hidden {
		return Fail(errors.New("access denied: path '%s' is hidden", path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Fail(errors.Wrapf(err, "failed to read file '%s'", path))
	}
	return Ok(string(content))
}

// WriteFileTool writes content to a file, replacing it entirely.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Creates the file if it does not exist."
}
func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return Fail(errors.New("missing or invalid 'path' or 'content' arguments"))
	}

	if blocked, err := checkWriteAccess(t.fsAccess, path); err != nil {
		return Fail(err)
	} else if blocked != "" {
		return Fail(errors.New(blocked))
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Fail(errors.Wrapf(err, "failed to write to file '%s'", path))
	}
	return Ok(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path))
}

func checkWriteAccess(fsAccess *config.FilesystemAccess, path string) (string, error) {
	hidden, err := isPathRestricted(path, fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return fmt.Sprintf("access denied: path '%s' is hidden", path), nil
	}
	readOnly, err := isPathRestricted(path, fsAccess.ReadOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return fmt.Sprintf("access denied: path '%s' is read-only", path), nil
	}
	return "", nil
}

// EditFileTool performs a single anchored find/replace edit against an
// existing file, distinct from WriteFileTool (whole-file replace) and
// ApplyPatchTool (multi-file, multi-hunk diffs).
type EditFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Replaces the first exact occurrence of old_text with new_text in a file."
}
func (t *EditFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":     map[string]interface{}{"type": "string"},
			"old_text": map[string]interface{}{"type": "string"},
			"new_text": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	path, pathOk := args["path"].(string)
	oldText, oldOk := args["old_text"].(string)
	newText, newOk := args["new_text"].(string)
	if !pathOk || !oldOk || !newOk {
		return Fail(errors.New("missing or invalid 'path', 'old_text' or 'new_text' arguments"))
	}

	if blocked, err := checkWriteAccess(t.fsAccess, path); err != nil {
		return Fail(err)
	} else if blocked != "" {
		return Fail(errors.New(blocked))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Fail(errors.Wrapf(err, "failed to read file '%s'", path))
	}
	content := string(raw)

	count := strings.Count(content, oldText)
	if count == 0 {
		return Fail(errors.New("old_text not found in '%s'", path))
	}
	if count > 1 {
		return Fail(errors.New("old_text is ambiguous: %d occurrences found in '%s'", count, path))
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return Fail(errors.Wrapf(err, "failed to write to file '%s'", path))
	}
	return Ok(fmt.Sprintf("Edited %s", path))
}
