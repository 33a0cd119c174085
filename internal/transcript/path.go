package transcript

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSocketPath is where a running session publishes live events and
// where the watch TUI listens.
func DefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "consoledrive", "transcript.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("consoledrive-%d", os.Getuid()), "transcript.sock")
}

// DefaultLogPath is where a run's transcript is persisted when the caller
// does not choose a path.
func DefaultLogPath(run string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("consoledrive-%s.jsonl", run))
}
