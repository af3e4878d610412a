// internal/extfuncs/extfuncs.go
//
// The external functions exposed to sandboxed agent scripts. These are
// the only way generated code can touch the host system. Failures are
// raised as panics, which the interpreter surfaces to the script run as
// runtime errors.
package extfuncs

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cairnhq/cairn/internal/overlay"
)

// MaxFileSize bounds single reads and writes (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

// SubmissionKey is the overlay KV key submit_result writes to.
const SubmissionKey = "submission"

// LLM answers free-form prompts for the ask_llm function.
type LLM interface {
	Ask(prompt string) (string, error)
}

// Funcs binds the external-function set to one agent's overlay.
type Funcs struct {
	agentID string
	ov      *overlay.Overlay
	llm     LLM
}

// New creates the function set for an agent. The overlay is the agent's
// own layer, which already falls through to stable on reads.
func New(agentID string, ov *overlay.Overlay, llm LLM) *Funcs {
	return &Funcs{agentID: agentID, ov: ov, llm: llm}
}

// Map returns the functions keyed by their script-visible names, in the
// shape the executor registers them.
func (f *Funcs) Map() map[string]any {
	return map[string]any{
		"read_file":      f.ReadFile,
		"write_file":     f.WriteFile,
		"list_dir":       f.ListDir,
		"file_exists":    f.FileExists,
		"search_files":   f.SearchFiles,
		"search_content": f.SearchContent,
		"ask_llm":        f.AskLLM,
		"submit_result":  f.SubmitResult,
		"log":            f.Log,
	}
}

// validatePath rejects escapes from the overlay namespace.
func validatePath(path string) {
	if strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		panic(fmt.Sprintf("InvalidPath: %s", path))
	}
}

// ReadFile returns file content from the agent overlay, falling through
// to stable.
func (f *Funcs) ReadFile(path string) string {
	validatePath(path)

	data, err := f.ov.ReadFile(path)
	if err != nil {
		if errors.Is(err, overlay.ErrNotFound) {
			panic(fmt.Sprintf("NotFound: %s", path))
		}
		panic(fmt.Sprintf("read_file %s: %v", path, err))
	}
	if len(data) > MaxFileSize {
		panic(fmt.Sprintf("TooLarge: %s is %d bytes", path, len(data)))
	}
	return string(data)
}

// WriteFile stores content in the agent overlay only.
func (f *Funcs) WriteFile(path, content string) bool {
	validatePath(path)

	if len(content) > MaxFileSize {
		panic(fmt.Sprintf("TooLarge: content is %d bytes", len(content)))
	}
	if err := f.ov.WriteFile(path, []byte(content)); err != nil {
		panic(fmt.Sprintf("write_file %s: %v", path, err))
	}
	return true
}

// ListDir returns the merged directory listing at path.
func (f *Funcs) ListDir(path string) []string {
	validatePath(path)

	entries, err := f.ov.ReadDir(path)
	if err != nil {
		if errors.Is(err, overlay.ErrNotFound) {
			panic(fmt.Sprintf("NotFound: %s", path))
		}
		panic(fmt.Sprintf("list_dir %s: %v", path, err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// FileExists reports whether path exists in any layer.
func (f *Funcs) FileExists(path string) bool {
	validatePath(path)

	_, err := f.ov.Stat(path)
	if err != nil {
		if errors.Is(err, overlay.ErrNotFound) {
			return false
		}
		panic(fmt.Sprintf("file_exists %s: %v", path, err))
	}
	return true
}

// SearchFiles returns paths matching a glob pattern across the merged
// view. A bare "*.ext" matches in every directory.
func (f *Funcs) SearchFiles(pattern string) []string {
	matcher := compileGlob(pattern)

	results := []string{}
	f.walk("", func(path string) {
		if matcher.MatchString(path) {
			results = append(results, path)
		}
	})
	return results
}

// SearchContent scans file contents under path with a regex and returns
// {file, line, text} matches. The scan runs over the overlay's merged
// view directly; no workspace is materialized for it.
func (f *Funcs) SearchContent(pattern, path string) []map[string]any {
	if path == "" {
		path = "."
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("search_content: bad pattern %q: %v", pattern, err))
	}

	root := strings.Trim(path, "./")
	results := []map[string]any{}
	f.walk(root, func(p string) {
		data, err := f.ov.ReadFile(p)
		if err != nil || len(data) > MaxFileSize {
			return
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				results = append(results, map[string]any{
					"file": p,
					"line": i + 1,
					"text": strings.TrimSpace(line),
				})
			}
		}
	})
	return results
}

// walk visits every file path in the merged view under root.
func (f *Funcs) walk(root string, visit func(path string)) {
	entries, err := f.ov.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		child := e.Name
		if root != "" {
			child = root + "/" + e.Name
		}
		if e.IsDir {
			f.walk(child, visit)
		} else {
			visit(child)
		}
	}
}

// AskLLM forwards a prompt to the configured model.
func (f *Funcs) AskLLM(prompt, context string) string {
	if f.llm == nil {
		panic("LLMUnavailable: no provider configured")
	}

	full := prompt
	if context != "" {
		full = context + "\n\n" + prompt
	}
	response, err := f.llm.Ask(full)
	if err != nil {
		panic(fmt.Sprintf("LLMUnavailable: %v", err))
	}
	return response
}

// taggedSubmission is the canonical stored submission form.
type taggedSubmission struct {
	AgentID    string         `json:"agent_id"`
	Submission submissionBody `json:"submission"`
}

type submissionBody struct {
	Summary      string   `json:"summary"`
	ChangedFiles []string `json:"changed_files"`
	SubmittedAt  float64  `json:"submitted_at"`
}

// SubmitResult stores the script's summary of its work in the agent
// overlay KV for the reviewer.
func (f *Funcs) SubmitResult(summary string, changedFiles []string) bool {
	payload := taggedSubmission{
		AgentID: f.agentID,
		Submission: submissionBody{
			Summary:      summary,
			ChangedFiles: changedFiles,
			SubmittedAt:  float64(time.Now().Unix()),
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("submit_result: %v", err))
	}
	if err := f.ov.KVSet(SubmissionKey, string(data)); err != nil {
		panic(fmt.Sprintf("submit_result: %v", err))
	}
	return true
}

// Log prints a debug line tagged with the agent id.
func (f *Funcs) Log(message string) bool {
	fmt.Printf("[%s] %s\n", f.agentID, message)
	return true
}
