// internal/signals/signals.go
//
// File-based command ingestion: JSON payloads dropped into the signals
// directory become normalized commands. Each file is single-shot and is
// unlinked whether or not it parsed.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cairnhq/cairn/internal/command"
)

// PollInterval is the fixed signal-directory scan cadence.
const PollInterval = 500 * time.Millisecond

// Dispatcher receives parsed commands; the orchestrator implements it.
type Dispatcher interface {
	SubmitCommand(cmd *command.Command) (*command.Result, error)
}

// stemPrefixes maps file-name prefixes to command tags for payloads
// that omit the type field.
var stemPrefixes = []struct {
	prefix string
	tag    string
}{
	{"spawn-", "spawn"},
	{"queue-", "queue"},
	{"accept-", "accept"},
	{"reject-", "reject"},
}

// Handler polls a directory for signal files and dispatches them.
type Handler struct {
	signalsDir    string
	dispatcher    Dispatcher
	enablePolling bool
}

// New creates a handler for <cairnHome>/signals. With polling disabled
// the Watch loop is a no-op but ProcessDir/ProcessFile stay usable.
func New(cairnHome string, dispatcher Dispatcher, enablePolling bool) *Handler {
	return &Handler{
		signalsDir:    filepath.Join(cairnHome, "signals"),
		dispatcher:    dispatcher,
		enablePolling: enablePolling,
	}
}

// Dir returns the watched signals directory.
func (h *Handler) Dir() string {
	return h.signalsDir
}

// Watch polls the signals directory until the context ends.
func (h *Handler) Watch(ctx context.Context) error {
	if !h.enablePolling {
		<-ctx.Done()
		return ctx.Err()
	}

	if err := os.MkdirAll(h.signalsDir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.ProcessDir()
		}
	}
}

// ProcessDir handles every *.json file currently in the directory, in
// lexicographic order. Bad files are logged and skipped; the poller
// never crashes on input.
func (h *Handler) ProcessDir() {
	matches, err := filepath.Glob(filepath.Join(h.signalsDir, "*.json"))
	if err != nil {
		return
	}
	sort.Strings(matches)

	for _, path := range matches {
		h.ProcessFile(path)
	}
}

// ProcessFile parses and dispatches one signal file, then unlinks it
// unconditionally so it is never reprocessed.
func (h *Handler) ProcessFile(path string) {
	defer os.Remove(path)

	payload := loadPayload(path)

	tag := ""
	if v, ok := payload["type"].(string); ok && v != "" {
		tag = v
	} else {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for _, sp := range stemPrefixes {
			if strings.HasPrefix(stem, sp.prefix) {
				tag = sp.tag
				// File-name default for the agent id, when the payload
				// does not carry one.
				if (sp.tag == "accept" || sp.tag == "reject") && payload["agent_id"] == nil {
					payload["agent_id"] = strings.TrimPrefix(stem, sp.prefix)
				}
				break
			}
		}
	}
	if tag == "" {
		return
	}

	cmd, err := command.Parse(tag, payload)
	if err != nil {
		if errors.Is(err, command.ErrInvalidCommand) {
			fmt.Printf("[signals] skip %s: %v\n", filepath.Base(path), err)
			return
		}
		fmt.Printf("[signals] parse %s: %v\n", filepath.Base(path), err)
		return
	}

	if _, err := h.dispatcher.SubmitCommand(cmd); err != nil {
		fmt.Printf("[signals] dispatch %s: %v\n", filepath.Base(path), err)
	}
}

// loadPayload reads and decodes a signal file, returning an empty map
// on any failure.
func loadPayload(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return map[string]any{}
	}
	return payload
}

// WriteSignal drops a command payload into the signals directory of
// cairnHome; the CLI front-end uses this to talk to a running service.
func WriteSignal(cairnHome, kind string, payload map[string]any, name string) (string, error) {
	dir := filepath.Join(cairnHome, "signals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create signals directory: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode signal payload: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", kind, name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write signal file: %w", err)
	}
	return path, nil
}
