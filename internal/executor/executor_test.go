// internal/executor/executor_test.go
package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		MaxDuration:       5 * time.Second,
		MaxMemoryBytes:    100 * 1024 * 1024,
		MaxRecursionDepth: 1000,
	}
}

func TestValidateAcceptsSimpleScript(t *testing.T) {
	e := New(testLimits())
	code := `
content := read_file("README")
write_file("README", content + "!")
submit_result("appended", []string{"README"})
`
	if err := e.Validate(code); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsForbiddenConstructs(t *testing.T) {
	e := New(testLimits())

	tests := []struct {
		name string
		code string
	}{
		{"import", "import \"os\"\nsubmit_result(\"\", []string{})"},
		{"os.Open", "f := os.Open(\"x\")\nsubmit_result(\"\", []string{})"},
		{"reflect", "v := reflect.ValueOf(1)\nsubmit_result(\"\", []string{})"},
		{"exec", "exec.Command(\"ls\")\nsubmit_result(\"\", []string{})"},
		{"goroutine", "go func() {}()\nsubmit_result(\"\", []string{})"},
		{"missing submit", `log("no submission here")`},
		{"empty", "   "},
		{"syntax error", "if { submit_result(\"\", []string{}) }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Validate(tt.code); err == nil {
				t.Errorf("expected validation failure for %s", tt.name)
			}
		})
	}
}

func TestExecuteCallsExternalFunctions(t *testing.T) {
	e := New(testLimits())

	var mu sync.Mutex
	var logged []string
	var submitted string

	functions := map[string]any{
		"log": func(message string) bool {
			mu.Lock()
			logged = append(logged, message)
			mu.Unlock()
			return true
		},
		"submit_result": func(summary string, changedFiles []string) bool {
			mu.Lock()
			submitted = summary
			mu.Unlock()
			return true
		},
	}

	code := `
log("starting")
submit_result("all done", []string{"a.txt"})
`
	result := e.Execute(context.Background(), code, functions, "agent-test0001")
	if result.Failed() {
		t.Fatalf("execute failed: %s %s", result.Kind, result.Error)
	}
	if len(logged) != 1 || logged[0] != "starting" {
		t.Errorf("logged = %v", logged)
	}
	if submitted != "all done" {
		t.Errorf("submitted = %q", submitted)
	}
	if result.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	e := New(testLimits())

	functions := map[string]any{
		"submit_result": func(summary string, changedFiles []string) bool { return true },
	}

	code := `
xs := []string{}
_ = xs[5]
submit_result("unreachable", []string{})
`
	result := e.Execute(context.Background(), code, functions, "agent-test0002")
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if result.Kind != KindRuntime {
		t.Errorf("kind = %s, want runtime", result.Kind)
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := New(Limits{MaxDuration: 200 * time.Millisecond})

	functions := map[string]any{
		"submit_result": func(summary string, changedFiles []string) bool { return true },
	}

	code := `
for {
}
`
	start := time.Now()
	result := e.Execute(context.Background(), code, functions, "agent-test0003")
	if !result.Failed() {
		t.Fatal("expected timeout failure")
	}
	if result.Kind != KindTimeout {
		t.Errorf("kind = %s, want timeout (error: %s)", result.Kind, result.Error)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout was not enforced promptly")
	}
}

func TestExecuteErrorMessagePropagates(t *testing.T) {
	e := New(testLimits())

	result := e.Execute(context.Background(), `undefined_function()`, map[string]any{}, "agent-test0004")
	if !result.Failed() {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "undefined") && result.Error == "" {
		t.Errorf("error message lost: %q", result.Error)
	}
}
