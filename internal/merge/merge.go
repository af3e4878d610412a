// internal/merge/merge.go
//
// Merge engine: copies an accepted agent's file edits into the stable
// overlay. Only files physically present in the agent's own layer are
// merged; content inherited from stable through fall-through never
// round-trips. The merge is monotone: stable gains or overwrites files,
// never loses one.
package merge

import (
	"fmt"

	"github.com/cairnhq/cairn/internal/overlay"
)

// Merge copies every local file of source into target at the same path.
// When the local enumeration is empty, changedFiles (from the agent's
// submission) is used as the file list and each path is read
// explicitly. Per-file failures are logged and do not abort the merge;
// the count of files copied is returned.
func Merge(source, target *overlay.Overlay, changedFiles []string) (int, error) {
	paths, err := source.ListLocalFiles("")
	if err != nil {
		return 0, fmt.Errorf("enumerate overlay files: %w", err)
	}
	if len(paths) == 0 {
		paths = changedFiles
	}

	merged := 0
	for _, path := range paths {
		data, err := source.ReadFile(path)
		if err != nil {
			fmt.Printf("[merge] skip %s: %v\n", path, err)
			continue
		}
		if err := target.WriteFile(path, data); err != nil {
			fmt.Printf("[merge] write %s: %v\n", path, err)
			continue
		}
		merged++
	}
	return merged, nil
}
