// Package prompts loads the seven role system prompts from disk. Each
// prompt file is Markdown with an optional YAML front-matter block
// (delimited by `---` lines) carrying metadata the loader validates but
// does not otherwise act on; the body below the front matter is the
// literal system prompt text handed to workflow.Config.Prompts.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/borgesius/babylon-scriptorium/internal/tools"
)

// frontMatter is the recognized metadata shape; Role is cross-checked
// against the file's own name so a copy-paste error is caught at load
// time rather than silently mis-wiring a role.
type frontMatter struct {
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
}

// roleFiles maps each role to its prompt file name under dir.
var roleFiles = map[string]string{
	tools.RoleAnalyzer:    "analyzer.md",
	tools.RolePlanner:     "planner.md",
	tools.RoleExecutor:    "executor.md",
	tools.RoleReviewer:    "reviewer.md",
	tools.RoleCoordinator: "coordinator.md",
	tools.RoleSteward:     "steward.md",
	tools.RoleOracle:      "oracle.md",
}

// Load reads every role's prompt file from dir and returns role -> system
// prompt text, suitable for workflow.Config.Prompts.
func Load(dir string) (map[string]string, error) {
	out := make(map[string]string, len(roleFiles))
	for role, name := range roleFiles {
		body, err := loadOne(filepath.Join(dir, name), role)
		if err != nil {
			return nil, err
		}
		out[role] = body
	}
	return out, nil
}

func loadOne(path, role string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompts: read %s: %w", path, err)
	}

	body := string(raw)
	if meta, rest, ok := splitFrontMatter(body); ok {
		var fm frontMatter
		if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
			return "", fmt.Errorf("prompts: parse front matter in %s: %w", path, err)
		}
		if fm.Role != "" && fm.Role != role {
			return "", fmt.Errorf("prompts: %s declares role %q, expected %q", path, fm.Role, role)
		}
		body = rest
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("prompts: %s has no body after front matter", path)
	}
	return body, nil
}

// splitFrontMatter extracts a leading `---\n...\n---\n` block, if present.
func splitFrontMatter(doc string) (meta, rest string, ok bool) {
	const delim = "---"
	if !strings.HasPrefix(doc, delim) {
		return "", doc, false
	}
	after := doc[len(delim):]
	after = strings.TrimPrefix(after, "\n")
	end := strings.Index(after, "\n"+delim)
	if end < 0 {
		return "", doc, false
	}
	meta = after[:end]
	rest = after[end+1+len(delim):]
	return meta, rest, true
}
