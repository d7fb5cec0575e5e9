// Package patch implements the apply_patch engine: a context-anchored,
// multi-file diff format distinct from unified diff, designed so a model
// can describe edits by surrounding context rather than line numbers. The
// grammar and the hunk-location algorithm (a line match inside the window the
// @@ anchors narrow to, then a fuzzy match on the hunk's first deletion line
// anywhere in the file, then anchor-relative insertion for additions-only
// hunks) are grounded on the reference apply_patch implementation.
//
// Patch format:
//
//	*** Begin Patch
//	*** Add File: path/to/new_file.go
//	+line 1
//	+line 2
//	*** Update File: path/to/existing.go
//	@@ func Example()
//	 context line 1
//	 context line 2
//	-old line to remove
//	+new line to add
//	 context line 3
//	*** Delete File: path/to/obsolete.go
//	*** End Patch
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/amcp-dev/amcp/errors"
)

// OperationType identifies what a FileOperation does.
type OperationType string

const (
	OpAdd    OperationType = "add"
	OpDelete OperationType = "delete"
	OpUpdate OperationType = "update"
)

// HunkLine is one line of a hunk body: a context line (' '), a deletion
// ('-'), or an addition ('+').
type HunkLine struct {
	Prefix byte
	Text   string
}

func (l HunkLine) IsContext() bool  { return l.Prefix == ' ' }
func (l HunkLine) IsDeletion() bool { return l.Prefix == '-' }
func (l HunkLine) IsAddition() bool { return l.Prefix == '+' }

// Hunk is one `@@`-anchored block of an Update File operation.
type Hunk struct {
	Anchors []string
	Lines   []HunkLine
}

// FileOperation is one `***`-headed section of a patch.
type FileOperation struct {
	Type         OperationType
	Path         string
	MoveTo       string
	ContentLines []string // for OpAdd
	Hunks        []Hunk   // for OpUpdate
}

// Patch is a fully parsed apply_patch document.
type Patch struct {
	Operations []FileOperation
}

var (
	reBeginPatch  = regexp.MustCompile(`(?i)^\*\*\*\s*Begin\s*Patch\s*$`)
	reEndPatch    = regexp.MustCompile(`(?i)^\*\*\*\s*End\s*Patch\s*$`)
	reAddFile     = regexp.MustCompile(`(?i)^\*\*\*\s*Add\s*File:\s*(.+?)\s*$`)
	reDeleteFile  = regexp.MustCompile(`(?i)^\*\*\*\s*Delete\s*File:\s*(.+?)\s*$`)
	reUpdateFile  = regexp.MustCompile(`(?i)^\*\*\*\s*Update\s*File:\s*(.+?)\s*$`)
	reMoveTo      = regexp.MustCompile(`(?i)^\*\*\*\s*Move\s*to:\s*(.+?)\s*$`)
	reHunkHeader  = regexp.MustCompile(`^@@\s*(.*)$`)
	reEndOfFile   = regexp.MustCompile(`(?i)^\*\*\*\s*End\s*of\s*File\s*$`)
)

func isOperationHeader(line string) bool {
	return reEndPatch.MatchString(line) || reAddFile.MatchString(line) ||
		reDeleteFile.MatchString(line) || reUpdateFile.MatchString(line)
}

// Parse parses patch text into a Patch. It returns an error only when no
// "*** Begin Patch" marker is found; unrecognized lines within the body are
// skipped, matching the reference parser's permissiveness.
func Parse(patchText string) (*Patch, error) {
	lines := strings.Split(patchText, "\n")
	p := &Patch{}

	i := 0
	for i < len(lines) {
		if reBeginPatch.MatchString(strings.TrimSpace(lines[i])) {
			i++
			break
		}
		i++
	}
	if i >= len(lines) {
		return nil, errors.WithCode(errors.New("no '*** Begin Patch' found"), errors.CodeInvalidArgument)
	}

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if reEndPatch.MatchString(line) {
			break
		}

		if m := reAddFile.FindStringSubmatch(line); m != nil {
			op, next := parseAddFile(lines, i, m[1])
			p.Operations = append(p.Operations, op)
			i = next
			continue
		}
		if m := reDeleteFile.FindStringSubmatch(line); m != nil {
			p.Operations = append(p.Operations, FileOperation{Type: OpDelete, Path: m[1]})
			i++
			continue
		}
		if m := reUpdateFile.FindStringSubmatch(line); m != nil {
			op, next := parseUpdateFile(lines, i, m[1])
			p.Operations = append(p.Operations, op)
			i = next
			continue
		}
		i++
	}

	return p, nil
}

func parseAddFile(lines []string, start int, path string) (FileOperation, int) {
	op := FileOperation{Type: OpAdd, Path: path}
	i := start + 1
	for i < len(lines) {
		line := lines[i]
		if isOperationHeader(strings.TrimSpace(line)) {
			break
		}
		if strings.HasPrefix(line, "+") {
			op.ContentLines = append(op.ContentLines, line[1:])
		}
		i++
	}
	return op, i
}

func parseUpdateFile(lines []string, start int, path string) (FileOperation, int) {
	op := FileOperation{Type: OpUpdate, Path: path}
	i := start + 1

	if i < len(lines) {
		if m := reMoveTo.FindStringSubmatch(strings.TrimSpace(lines[i])); m != nil {
			op.MoveTo = m[1]
			i++
		}
	}

	var current *Hunk
	for i < len(lines) {
		line := lines[i]
		stripped := strings.TrimSpace(line)

		if isOperationHeader(stripped) {
			break
		}
		if reEndOfFile.MatchString(stripped) {
			i++
			continue
		}
		if m := reHunkHeader.FindStringSubmatch(stripped); m != nil {
			if current == nil || len(current.Lines) > 0 {
				op.Hunks = append(op.Hunks, Hunk{})
				current = &op.Hunks[len(op.Hunks)-1]
			}
			if anchor := strings.TrimSpace(m[1]); anchor != "" {
				current.Anchors = append(current.Anchors, anchor)
			}
			i++
			continue
		}
		if len(line) > 0 && (line[0] == ' ' || line[0] == '-' || line[0] == '+') {
			if current == nil {
				op.Hunks = append(op.Hunks, Hunk{})
				current = &op.Hunks[len(op.Hunks)-1]
			}
			text := ""
			if len(line) > 1 {
				text = line[1:]
			}
			current.Lines = append(current.Lines, HunkLine{Prefix: line[0], Text: text})
			i++
			continue
		}
		i++
	}

	return op, i
}

// Change summarizes one applied FileOperation.
type Change struct {
	Type         string `json:"type"`
	Path         string `json:"path"`
	TargetPath   string `json:"target_path,omitempty"`
	LinesAdded   int    `json:"lines_added,omitempty"`
	HunksApplied int    `json:"hunks_applied,omitempty"`
	Deletions    int    `json:"deletions,omitempty"`
	Additions    int    `json:"additions,omitempty"`
}

// Applier applies a parsed Patch to files under BaseDir.
type Applier struct {
	BaseDir string
}

// NewApplier creates an Applier rooted at baseDir.
func NewApplier(baseDir string) *Applier {
	return &Applier{BaseDir: baseDir}
}

// Apply applies every operation in p in order, returning a summary of each
// or an error identifying which operation failed.
func (a *Applier) Apply(p *Patch) ([]Change, error) {
	var changes []Change
	for _, op := range p.Operations {
		var change Change
		var err error
		switch op.Type {
		case OpAdd:
			change, err = a.applyAdd(op)
		case OpDelete:
			change, err = a.applyDelete(op)
		case OpUpdate:
			change, err = a.applyUpdate(op)
		}
		if err != nil {
			return changes, errors.Wrapf(err, "failed to apply %s for %s", op.Type, op.Path)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// resolvePath rejects absolute paths (patches must stay within BaseDir) and
// strips leading "./" components, matching the reference applier.
func (a *Applier) resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return "", errors.WithCode(errors.New("absolute paths not allowed: %s", path), errors.CodeInvalidArgument)
	}
	clean := path
	for strings.HasPrefix(clean, "./") {
		clean = clean[2:]
	}
	return filepath.Join(a.BaseDir, clean), nil
}

func (a *Applier) applyAdd(op FileOperation) (Change, error) {
	path, err := a.resolvePath(op.Path)
	if err != nil {
		return Change{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Change{}, err
	}
	content := strings.Join(op.ContentLines, "\n")
	if len(op.ContentLines) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Change{}, err
	}
	return Change{Type: "add", Path: path, LinesAdded: len(op.ContentLines)}, nil
}

func (a *Applier) applyDelete(op FileOperation) (Change, error) {
	path, err := a.resolvePath(op.Path)
	if err != nil {
		return Change{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return Change{}, errors.WithCode(errors.New("file not found for deletion: %s", path), errors.CodeNotFound)
	}
	if err := os.Remove(path); err != nil {
		return Change{}, err
	}
	return Change{Type: "delete", Path: path}, nil
}

func (a *Applier) applyUpdate(op FileOperation) (Change, error) {
	path, err := a.resolvePath(op.Path)
	if err != nil {
		return Change{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Change{}, errors.WithCode(errors.New("file not found for update: %s", path), errors.CodeNotFound)
	}
	lines := splitKeepEnds(string(raw))

	totalDel, totalAdd := 0, 0
	for _, hunk := range op.Hunks {
		var del, add int
		lines, del, add, err = applyHunk(lines, hunk)
		if err != nil {
			return Change{}, err
		}
		totalDel += del
		totalAdd += add
	}

	newContent := strings.Join(lines, "")
	targetPath := path
	if op.MoveTo != "" {
		targetPath, err = a.resolvePath(op.MoveTo)
		if err != nil {
			return Change{}, err
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return Change{}, err
		}
	}
	if err := os.WriteFile(targetPath, []byte(newContent), 0644); err != nil {
		return Change{}, err
	}
	if op.MoveTo != "" && path != targetPath {
		if err := os.Remove(path); err != nil {
			return Change{}, err
		}
	}

	change := Change{Type: "update", Path: path, HunksApplied: len(op.Hunks), Deletions: totalDel, Additions: totalAdd}
	if op.MoveTo != "" {
		change.TargetPath = targetPath
	}
	return change, nil
}

// splitKeepEnds splits s into lines, preserving the trailing "\n" on every
// line but the (possibly empty) final one, mirroring Python's
// str.splitlines(keepends=True).
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func rstripNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}

func applyHunk(lines []string, hunk Hunk) ([]string, int, int, error) {
	var pattern []string
	for _, l := range hunk.Lines {
		if l.IsContext() || l.IsDeletion() {
			pattern = append(pattern, l.Text)
		}
	}

	if len(pattern) == 0 {
		return applyAdditionsOnlyHunk(lines, hunk)
	}

	matchStart := findHunkLocation(lines, hunk, pattern)
	if matchStart < 0 {
		matchStart = fuzzyFindHunkLocation(lines, hunk)
	}
	if matchStart < 0 {
		preview := pattern
		if len(preview) > 3 {
			preview = preview[:3]
		}
		return nil, 0, 0, errors.New("could not find match for hunk. Looking for: %v", preview)
	}

	newLines := append([]string{}, lines[:matchStart]...)
	i := 0
	deletions, additions := 0, 0
	for _, hl := range hunk.Lines {
		switch {
		case hl.IsContext():
			if matchStart+i < len(lines) {
				newLines = append(newLines, lines[matchStart+i])
			} else {
				newLines = append(newLines, hl.Text+"\n")
			}
			i++
		case hl.IsDeletion():
			i++
			deletions++
		case hl.IsAddition():
			text := hl.Text
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			newLines = append(newLines, text)
			additions++
		}
	}
	newLines = append(newLines, lines[matchStart+i:]...)
	return newLines, deletions, additions, nil
}

// findHunkLocation narrows the search window using the hunk's @@ anchors
// (each anchor found advances the window start to that line) and then
// looks for a line-by-line match of pattern within the window, ignoring
// trailing spaces and tabs.
func findHunkLocation(lines []string, hunk Hunk, pattern []string) int {
	stripped := make([]string, len(lines))
	for i, l := range lines {
		stripped[i] = rstripNewline(l)
	}
	strippedPattern := make([]string, len(pattern))
	for i, p := range pattern {
		strippedPattern[i] = rstripNewline(p)
	}
	if len(strippedPattern) == 0 {
		return -1
	}

	searchStart, searchEnd := 0, len(stripped)
	for _, anchor := range hunk.Anchors {
		anchor = strings.TrimSpace(anchor)
		for idx := searchStart; idx < searchEnd; idx++ {
			if strings.Contains(stripped[idx], anchor) {
				searchStart = idx
				break
			}
		}
	}

	patternLen := len(strippedPattern)
	for i := searchStart; i <= searchEnd-patternLen; i++ {
		match := true
		for j, p := range strippedPattern {
			if strings.TrimRight(stripped[i+j], " \t") != strings.TrimRight(p, " \t") {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// fuzzyFindHunkLocation falls back to locating the hunk by its first
// deletion line alone, then backs up over the hunk's leading context lines
// to recover the true start of the hunk.
func fuzzyFindHunkLocation(lines []string, hunk Hunk) int {
	stripped := make([]string, len(lines))
	for i, l := range lines {
		stripped[i] = rstripNewline(l)
	}

	for _, hl := range hunk.Lines {
		if !hl.IsDeletion() {
			continue
		}
		target := strings.TrimRight(hl.Text, " \t")
		for idx, line := range stripped {
			if strings.TrimRight(line, " \t") == target {
				return verifyAndAdjustPosition(idx, hunk)
			}
		}
	}
	return -1
}

func verifyAndAdjustPosition(candidate int, hunk Hunk) int {
	contextBefore := 0
	for _, hl := range hunk.Lines {
		if hl.IsContext() {
			contextBefore++
		} else {
			break
		}
	}
	adjusted := candidate - contextBefore
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// applyAdditionsOnlyHunk handles a hunk with no context or deletion lines:
// it inserts right after wherever its anchors are found, or at end of file
// if there are no anchors or none match.
func applyAdditionsOnlyHunk(lines []string, hunk Hunk) ([]string, int, int, error) {
	insertPos := len(lines)
	if len(hunk.Anchors) > 0 {
		stripped := make([]string, len(lines))
		for i, l := range lines {
			stripped[i] = rstripNewline(l)
		}
		found := -1
		for _, anchor := range hunk.Anchors {
			anchor = strings.TrimSpace(anchor)
			for idx, line := range stripped {
				if strings.Contains(line, anchor) {
					found = idx + 1
					break
				}
			}
			if found >= 0 {
				break
			}
		}
		if found >= 0 {
			insertPos = found
		}
	}

	newLines := append([]string{}, lines[:insertPos]...)
	additions := 0
	for _, hl := range hunk.Lines {
		if hl.IsAddition() {
			text := hl.Text
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			newLines = append(newLines, text)
			additions++
		}
	}
	newLines = append(newLines, lines[insertPos:]...)
	return newLines, 0, additions, nil
}

// ApplyText parses and applies patchText in one call, rooted at baseDir.
func ApplyText(patchText, baseDir string) ([]Change, error) {
	p, err := Parse(patchText)
	if err != nil {
		return nil, err
	}
	return NewApplier(baseDir).Apply(p)
}

// Summary renders a human-readable one-line-per-change report, the shape
// returned to the model as a tool result.
func Summary(changes []Change) string {
	var b strings.Builder
	for _, c := range changes {
		switch c.Type {
		case "add":
			fmt.Fprintf(&b, "A %s (+%d)\n", c.Path, c.LinesAdded)
		case "delete":
			fmt.Fprintf(&b, "D %s\n", c.Path)
		case "update":
			if c.TargetPath != "" {
				fmt.Fprintf(&b, "M %s -> %s (+%d/-%d)\n", c.Path, c.TargetPath, c.Additions, c.Deletions)
			} else {
				fmt.Fprintf(&b, "M %s (+%d/-%d)\n", c.Path, c.Additions, c.Deletions)
			}
		}
	}
	return b.String()
}
