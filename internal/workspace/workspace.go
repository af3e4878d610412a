// internal/workspace/workspace.go
//
// Materializes overlay contents to a real directory so a human can
// inspect an agent's proposed changes with ordinary tools.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cairnhq/cairn/internal/overlay"
)

// Materializer renders stable+overlay state into preview workspaces
// under <home>/workspaces/<agent-id>.
type Materializer struct {
	workspaceDir string
	stable       *overlay.Overlay
}

// New creates a materializer rooted at cairnHome.
func New(cairnHome string, stable *overlay.Overlay) *Materializer {
	return &Materializer{
		workspaceDir: filepath.Join(cairnHome, "workspaces"),
		stable:       stable,
	}
}

// Materialize writes stable first and the agent overlay second (so
// agent edits win) into the agent's workspace directory, replacing any
// previous render. Returns the workspace path.
func (m *Materializer) Materialize(agentID string, agentOverlay *overlay.Overlay) (string, error) {
	workspace := filepath.Join(m.workspaceDir, agentID)

	if err := os.RemoveAll(workspace); err != nil {
		return "", fmt.Errorf("clear workspace %s: %w", agentID, err)
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", agentID, err)
	}

	if m.stable != nil {
		if err := m.copyLayer(m.stable, workspace); err != nil {
			return "", err
		}
	}
	if err := m.copyLayer(agentOverlay, workspace); err != nil {
		return "", err
	}
	return workspace, nil
}

// copyLayer writes one layer's local files into dest.
func (m *Materializer) copyLayer(layer *overlay.Overlay, dest string) error {
	paths, err := layer.ListLocalFiles("")
	if err != nil {
		return fmt.Errorf("enumerate layer: %w", err)
	}

	for _, path := range paths {
		data, err := layer.ReadFile(path)
		if err != nil {
			fmt.Printf("[workspace] skip %s: %v\n", path, err)
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}
	return nil
}

// Cleanup removes a materialized workspace. Removing an absent
// workspace is not an error.
func (m *Materializer) Cleanup(agentID string) error {
	return os.RemoveAll(filepath.Join(m.workspaceDir, agentID))
}
