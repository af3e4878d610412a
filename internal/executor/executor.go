// internal/executor/executor.go
//
// Sandboxed execution of generated agent scripts. Scripts run inside a
// yaegi interpreter with no stdlib access; the only callable surface is
// the external-function set registered per run. A context deadline
// enforces the wall-clock limit.
package executor

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
)

// externalPackage is the interpreter package path the external
// functions are exported under. The executor dot-imports it ahead of
// the script so calls stay unqualified.
const externalPackage = "cairn/cairn"

// ResultKind classifies a sandbox run outcome.
type ResultKind string

const (
	KindOk        ResultKind = "ok"
	KindSyntax    ResultKind = "syntax"
	KindRuntime   ResultKind = "runtime"
	KindTimeout   ResultKind = "timeout"
	KindMemory    ResultKind = "memory"
	KindRecursion ResultKind = "recursion"
	KindUnknown   ResultKind = "unknown"
)

// Limits are the per-run resource bounds.
type Limits struct {
	MaxDuration       time.Duration
	MaxMemoryBytes    int64
	MaxRecursionDepth int
}

// Result describes one sandbox run.
type Result struct {
	Kind     ResultKind
	Error    string
	Duration time.Duration
	AgentID  string
}

// Failed reports whether the run ended in anything but ok.
func (r *Result) Failed() bool {
	return r.Kind != KindOk
}

// Executor runs validated scripts under resource limits.
type Executor struct {
	limits Limits
}

// New creates an executor with the given limits.
func New(limits Limits) *Executor {
	return &Executor{limits: limits}
}

// forbidden patterns mirror the generation-prompt constraints. The
// interpreter carries no stdlib, so a match here fails fast with a
// clear message instead of an undefined-symbol error at run time.
var forbiddenPatterns = []struct {
	re  *regexp.Regexp
	msg string
}{
	{regexp.MustCompile(`(?m)^\s*import\b`), "import statements not allowed"},
	{regexp.MustCompile(`\bos\s*\.\s*Open`), "os.Open not allowed - use read_file/write_file"},
	{regexp.MustCompile(`\bos\s*\.\s*Create`), "os.Create not allowed - use write_file"},
	{regexp.MustCompile(`\bioutil\s*\.`), "ioutil not allowed - use read_file/write_file"},
	{regexp.MustCompile(`\breflect\s*\.`), "reflection not allowed"},
	{regexp.MustCompile(`\bexec\s*\.`), "process execution not allowed"},
	{regexp.MustCompile(`\bgo\s+func\b`), "goroutines not allowed"},
	{regexp.MustCompile(`\bunsafe\s*\.`), "unsafe not allowed"},
}

// Validate statically checks a script before execution: it must parse
// under the interpreter's grammar, must not use forbidden constructs,
// and must call submit_result.
func (e *Executor) Validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("validation failed: empty script")
	}

	for _, fp := range forbiddenPatterns {
		if fp.re.MatchString(code) {
			return fmt.Errorf("validation failed: %s", fp.msg)
		}
	}

	if !strings.Contains(code, "submit_result(") {
		return fmt.Errorf("validation failed: script must call submit_result()")
	}

	// Compile with a throwaway interpreter; nothing is executed. Stub
	// bindings stand in for the external functions so calls to the
	// declared surface type-check and anything else is rejected.
	i := interp.New(interp.Options{})
	if err := i.Use(interp.Exports{externalPackage: stubExports()}); err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}
	if _, err := i.Eval(`import . "cairn"`); err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}
	if _, err := i.Compile(code); err != nil {
		return fmt.Errorf("validation failed: syntax error: %v", err)
	}
	return nil
}

// stubExports mirrors the script-facing function contract with inert
// implementations, for validation only.
func stubExports() map[string]reflect.Value {
	return map[string]reflect.Value{
		"read_file":      reflect.ValueOf(func(path string) string { return "" }),
		"write_file":     reflect.ValueOf(func(path, content string) bool { return true }),
		"list_dir":       reflect.ValueOf(func(path string) []string { return nil }),
		"file_exists":    reflect.ValueOf(func(path string) bool { return false }),
		"search_files":   reflect.ValueOf(func(pattern string) []string { return nil }),
		"search_content": reflect.ValueOf(func(pattern, path string) []map[string]any { return nil }),
		"ask_llm":        reflect.ValueOf(func(prompt, context string) string { return "" }),
		"submit_result":  reflect.ValueOf(func(summary string, changedFiles []string) bool { return true }),
		"log":            reflect.ValueOf(func(message string) bool { return true }),
	}
}

// Execute runs the script with the external functions bound. The
// returned result is always non-nil; a failure to register or bind the
// external functions is reported as a KindUnknown result.
func (e *Executor) Execute(ctx context.Context, code string, functions map[string]any, agentID string) *Result {
	start := time.Now()

	result := func(kind ResultKind, msg string) *Result {
		return &Result{
			Kind:     kind,
			Error:    msg,
			Duration: time.Since(start),
			AgentID:  agentID,
		}
	}

	i := interp.New(interp.Options{})

	exports := make(map[string]reflect.Value, len(functions))
	for name, fn := range functions {
		exports[name] = reflect.ValueOf(fn)
	}
	if err := i.Use(interp.Exports{externalPackage: exports}); err != nil {
		return result(KindUnknown, fmt.Sprintf("register external functions: %v", err))
	}

	if _, err := i.EvalWithContext(ctx, `import . "cairn"`); err != nil {
		return result(KindUnknown, fmt.Sprintf("bind external functions: %v", err))
	}

	runCtx := ctx
	if e.limits.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.limits.MaxDuration)
		defer cancel()
	}

	_, err := i.EvalWithContext(runCtx, code)
	if err != nil {
		return result(classify(runCtx, err), err.Error())
	}

	return result(KindOk, "")
}

// classify maps interpreter errors onto the sandbox outcome taxonomy.
func classify(ctx context.Context, err error) ResultKind {
	if ctx.Err() == context.DeadlineExceeded {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") || strings.Contains(msg, "context canceled"):
		return KindTimeout
	case strings.Contains(msg, "memory"):
		return KindMemory
	case strings.Contains(msg, "recursion") || strings.Contains(msg, "stack overflow"):
		return KindRecursion
	case strings.Contains(msg, "expected") || strings.Contains(msg, "syntax"):
		return KindSyntax
	default:
		return KindRuntime
	}
}
