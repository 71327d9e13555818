// Package tools implements the filesystem, shell, and completion-signaling
// operations an agent may invoke through the model's function-calling
// interface. Every tool exposes a name, a human description, a JSON Schema
// parameter spec validated with github.com/santhosh-tekuri/jsonschema/v6,
// and an execution function that never panics into the agent loop: every
// failure surfaces as a Result with IsError set and a diagnostic message.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Output truncation caps (§4.1). All are character counts measured on the
// UTF-8 byte length of the rendered string, which is an acceptable
// approximation for the ASCII-heavy text these tools produce.
const (
	CapGeneral = 30000
	CapSearch  = 20000
	CapListing = 12000
	CapDiff    = 12000
	CapTest    = 3000
)

// reservedDir is the persistence directory every path-resolving tool must
// refuse to read or write into.
const reservedDir = ".babylon"

type (
	// Context is the execution context passed to every tool invocation.
	Context struct {
		TaskID      string
		AgentID     string
		WorkDir     string
		FileScope   []string
		DisableCLI  bool
		ctx         context.Context
	}

	// Result is what a tool execution returns to the agent runtime.
	Result struct {
		Content string
		IsError bool
	}

	// Executor runs a tool with decoded arguments already validated against
	// its schema.
	Executor func(tc Context, args map[string]any) Result

	// Spec describes one invocable tool: its name, description, JSON
	// Schema parameter spec, and execution function.
	Spec struct {
		Name        string
		Description string
		Schema      map[string]any
		Run         Executor

		compiled *jsonschema.Schema
	}

	// Registry indexes tool specs by name and compiles their schemas once
	// at construction time.
	Registry struct {
		specs map[string]*Spec
	}
)

// NewContext builds a tool Context for one agent turn.
func NewContext(ctx context.Context, taskID, agentID, workDir string, fileScope []string, disableCLI bool) Context {
	return Context{TaskID: taskID, AgentID: agentID, WorkDir: workDir, FileScope: fileScope, DisableCLI: disableCLI, ctx: ctx}
}

// Done returns the context's cancellation channel so long-running tools can
// select on it alongside their own timeouts.
func (tc Context) Done() <-chan struct{} {
	if tc.ctx == nil {
		return nil
	}
	return tc.ctx.Done()
}

// Context returns the underlying context.Context, for passing to
// exec.CommandContext and similar APIs.
func (tc Context) Context() context.Context {
	if tc.ctx == nil {
		return context.Background()
	}
	return tc.ctx
}

// errResult builds an IsError result from a formatted message.
func errResult(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// resolvePath validates path safety per §4.1: the resolved path must stay
// within tc.WorkDir and must not equal or descend into the reserved
// .babylon persistence directory.
func resolvePath(tc Context, path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs := filepath.Join(tc.WorkDir, path)
	rel, err := filepath.Rel(tc.WorkDir, abs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the working directory", path)
	}
	if rel == reservedDir || strings.HasPrefix(rel, reservedDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves into the reserved %s directory", path, reservedDir)
	}
	return abs, nil
}

// truncate keeps a cap-sized prefix+suffix of s when it exceeds max,
// separating them with the marker required by §4.1. tail, when true,
// truncates from the front and keeps the tail (used for shell/test output).
func truncate(s string, max int, tail bool) string {
	if len(s) <= max {
		return s
	}
	removed := len(s) - max
	marker := fmt.Sprintf("[… truncated %d characters …]", removed)
	if tail {
		return marker + "\n" + s[len(s)-max:]
	}
	half := max / 2
	return s[:half] + "\n" + marker + "\n" + s[len(s)-half:]
}

// NewRegistry compiles every spec's schema and indexes them by name.
func NewRegistry(specs []*Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]*Spec, len(specs))}
	for _, s := range specs {
		if s.Schema != nil {
			raw, err := json.Marshal(s.Schema)
			if err != nil {
				return nil, fmt.Errorf("tools: marshal schema for %s: %w", s.Name, err)
			}
			var schemaDoc any
			if err := json.Unmarshal(raw, &schemaDoc); err != nil {
				return nil, fmt.Errorf("tools: decode schema for %s: %w", s.Name, err)
			}
			compiler := jsonschema.NewCompiler()
			res := "mem://" + s.Name + ".json"
			if err := compiler.AddResource(res, schemaDoc); err != nil {
				return nil, fmt.Errorf("tools: add schema resource for %s: %w", s.Name, err)
			}
			compiled, err := compiler.Compile(res)
			if err != nil {
				return nil, fmt.Errorf("tools: compile schema for %s: %w", s.Name, err)
			}
			s.compiled = compiled
		}
		r.specs[s.Name] = s
	}
	return r, nil
}

// Lookup returns the spec registered under name, if any.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Definitions returns the subset of registered tools named in names, for
// building a model.ToolDefinition list scoped to one agent role. Unknown
// names are silently skipped; callers are expected to pass names that were
// themselves derived from the registry.
func (r *Registry) Definitions(names []string) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(names))
	for _, n := range names {
		if s, ok := r.specs[n]; ok {
			out = append(out, ToolDefinition{Name: s.Name, Description: s.Description, Schema: s.Schema})
		}
	}
	return out
}

// ToolDefinition is the provider-agnostic shape the agent runtime turns
// into a model.ToolDefinition.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Invoke validates raw JSON arguments against the tool's schema, decodes
// them, and runs the tool. Validation failures and unknown tools are
// reported as ordinary IsError results rather than Go errors, matching the
// "execution never throws into the agent loop" contract.
func (r *Registry) Invoke(tc Context, name string, rawArgs json.RawMessage) Result {
	spec, ok := r.specs[name]
	if !ok {
		return errResult("Unknown tool: %s", name)
	}
	var args map[string]any
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errResult("invalid arguments for %s: %v", name, err)
		}
	}
	if spec.compiled != nil {
		if err := spec.compiled.Validate(toAny(args)); err != nil {
			return errResult("arguments for %s failed schema validation: %v", name, err)
		}
	}
	return spec.Run(tc, args)
}

func toAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
