package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/errors"
)

// GrepTool recursively searches text files under a root for a regex match,
// honoring the same hidden-path rules as the filesystem tools.
type GrepTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *GrepTool) Name() string { return "grep" }
func (t *GrepTool) Description() string {
	return "Searches files under a path for lines matching a regular expression."
}
func (t *GrepTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string"},
			"path":    map[string]interface{}{"type": "string", "description": "Root path to search; defaults to '.'."},
		},
		"required": []string{"pattern"},
	}
}

const grepMaxMatches = 200

func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	pattern, ok := args["pattern"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'pattern' argument"))
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Fail(errors.Wrapf(err, "invalid regular expression"))
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if hidden, _ := isPathRestricted(path, t.fsAccess.Hidden); hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden, _ := isPathRestricted(path, t.fsAccess.Hidden); hidden {
			return nil
		}
		if len(matches) >= grepMaxMatches {
			return nil
		}
		grepFile(path, re, &matches)
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return Fail(errors.Wrapf(walkErr, "grep failed"))
	}
	if len(matches) == 0 {
		return Ok("No matches found.")
	}
	return Ok(strings.Join(matches, "\n"))
}

func grepFile(path string, re *regexp.Regexp, matches *[]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d:%s", path, lineNum, line))
			if len(*matches) >= grepMaxMatches {
				return
			}
		}
	}
}
