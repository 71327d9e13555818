package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".next":        true,
	"dist":         true,
	"build":        true,
	reservedDir:    true,
}

// ReadFileSpec returns the read_file tool.
func ReadFileSpec() *Spec {
	return &Spec{
		Name:        "read_file",
		Description: "Read the UTF-8 contents of a file within the working directory, optionally restricted to a line range.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string"},
				"startLine": map[string]any{"type": "integer", "minimum": 1},
				"endLine":   map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []any{"path"},
		},
		Run: runReadFile,
	}
}

func runReadFile(tc Context, args map[string]any) Result {
	path, _ := args["path"].(string)
	abs, err := resolvePath(tc, path)
	if err != nil {
		return errResult("%v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return errResult("read %s: %v", path, err)
	}
	content := string(data)
	start, hasStart := intArg(args["startLine"])
	end, hasEnd := intArg(args["endLine"])
	if hasStart || hasEnd {
		lines := strings.Split(content, "\n")
		if !hasStart || start < 1 {
			start = 1
		}
		if !hasEnd || end > len(lines) {
			end = len(lines)
		}
		if start > len(lines) {
			return Result{Content: fmt.Sprintf("[Lines %d-%d]\n", start, end)}
		}
		slice := lines[start-1 : end]
		content = fmt.Sprintf("[Lines %d-%d]\n%s", start, end, strings.Join(slice, "\n"))
	}
	return Result{Content: truncate(content, CapGeneral, false)}
}

func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// ReadFilesSpec returns the read_files tool.
func ReadFilesSpec() *Spec {
	return &Spec{
		Name:        "read_files",
		Description: "Read up to 10 files at once, returning their contents concatenated with path headers.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"paths": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": 1,
					"maxItems": 10,
				},
			},
			"required": []any{"paths"},
		},
		Run: runReadFiles,
	}
}

const (
	perFileCap = 8000
	globalCap  = 25000
)

func runReadFiles(tc Context, args map[string]any) Result {
	rawPaths, _ := args["paths"].([]any)
	var out strings.Builder
	for _, rp := range rawPaths {
		path, _ := rp.(string)
		abs, err := resolvePath(tc, path)
		if err != nil {
			out.WriteString(fmt.Sprintf("--- %s ---\nerror: %v\n\n", path, err))
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			out.WriteString(fmt.Sprintf("--- %s ---\nerror: %v\n\n", path, err))
			continue
		}
		content := truncate(string(data), perFileCap, false)
		out.WriteString(fmt.Sprintf("--- %s ---\n%s\n\n", path, content))
	}
	return Result{Content: truncate(out.String(), globalCap, false)}
}

// WriteFileSpec returns the write_file tool.
func WriteFileSpec() *Spec {
	return &Spec{
		Name:        "write_file",
		Description: "Overwrite or create a file with the given content.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []any{"path", "content"},
		},
		Run: runWriteFile,
	}
}

func runWriteFile(tc Context, args map[string]any) Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	abs, err := resolvePath(tc, path)
	if err != nil {
		return errResult("%v", err)
	}
	if len(tc.FileScope) > 0 && !inScope(path, tc.FileScope) {
		// Out-of-scope writes are still performed; no scope warning is
		// logged or returned.
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errResult("write %s: %v", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return errResult("write %s: %v", path, err)
	}
	return Result{Content: fmt.Sprintf("Wrote %d bytes to %s", len(content), path)}
}

func inScope(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ListDirectorySpec returns the list_directory tool.
func ListDirectorySpec() *Spec {
	return &Spec{
		Name:        "list_directory",
		Description: "List files and directories under a path, optionally recursing up to maxDepth levels.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     map[string]any{"type": "string"},
				"maxDepth": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			},
		},
		Run: runListDirectory,
	}
}

func runListDirectory(tc Context, args map[string]any) Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	abs, err := resolvePath(tc, path)
	if err != nil {
		return errResult("%v", err)
	}
	maxDepth, ok := intArg(args["maxDepth"])
	if !ok || maxDepth < 1 {
		maxDepth = 1
	}
	var out strings.Builder
	if err := listRecurse(abs, "", 0, maxDepth, &out); err != nil {
		return errResult("list %s: %v", path, err)
	}
	return Result{Content: truncate(out.String(), CapListing, false)}
}

func listRecurse(dir, indent string, depth, maxDepth int, out *strings.Builder) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.IsDir() && skipDirs[e.Name()] {
			continue
		}
		kind := "f"
		if e.IsDir() {
			kind = "d"
		}
		out.WriteString(fmt.Sprintf("%s%s %s\n", indent, kind, e.Name()))
		if e.IsDir() && depth+1 < maxDepth {
			if err := listRecurse(filepath.Join(dir, e.Name()), indent+"  ", depth+1, maxDepth, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// SearchInFilesSpec returns the search_in_files tool.
func SearchInFilesSpec() *Spec {
	return &Spec{
		Name:        "search_in_files",
		Description: "Search for a regular expression across files under a path, optionally restricted by a glob.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern":    map[string]any{"type": "string"},
				"path":       map[string]any{"type": "string"},
				"glob":       map[string]any{"type": "string"},
				"maxResults": map[string]any{"type": "integer", "minimum": 1, "maximum": 500},
			},
			"required": []any{"pattern"},
		},
		Run: runSearchInFiles,
	}
}

const maxFilesVisited = 300

func runSearchInFiles(tc Context, args map[string]any) Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return errResult("pattern is required")
	}
	path, _ := args["path"].(string)
	abs, err := resolvePath(tc, path)
	if err != nil {
		return errResult("%v", err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	var globRe *regexp.Regexp
	if g, _ := args["glob"].(string); g != "" {
		translated := strings.NewReplacer("*", ".*", "?", ".").Replace(regexp.QuoteMeta(g))
		globRe = regexp.MustCompile(translated)
	}
	maxResults, ok := intArg(args["maxResults"])
	if !ok || maxResults < 1 {
		maxResults = 150
	}
	var out strings.Builder
	visited := 0
	results := 0
	_ = filepath.Walk(abs, func(p string, info os.FileInfo, err error) error {
		if err != nil || results >= maxResults || visited >= maxFilesVisited {
			return nil
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		visited++
		rel, _ := filepath.Rel(tc.WorkDir, p)
		if globRe != nil && !globRe.MatchString(rel) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if results >= maxResults {
				break
			}
			if re.MatchString(line) {
				out.WriteString(fmt.Sprintf("%s:%d:%s\n", rel, i+1, line))
				results++
			}
		}
		return nil
	})
	return Result{Content: truncate(out.String(), CapSearch, false)}
}
