// Package workspace manages the on-disk layout under the configured root:
// free-form workspace state, reusable skill modules, generated bindings,
// and the broker's credential directory.
package workspace

import (
	"os"
	"path/filepath"
)

// Workspace provides path helpers under the configured root and ensures
// the required subdirectories exist.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at the given directory.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// EnsureStructure creates the directory tree if it does not exist.
// Idempotent — safe to call multiple times, and required before any
// script runs.
func (w *Workspace) EnsureStructure() error {
	dirs := []string{
		w.Root,
		w.WorkspaceDir(),
		w.SkillsDir(),
		w.RunsDir(),
		w.GeneratedDir(),
		w.DataDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// The credential store keeps owner-only permissions.
	return os.MkdirAll(w.OAuthDir(), 0o700)
}

// WorkspaceDir returns the free-form state directory mounted read-write
// into the sandbox.
func (w *Workspace) WorkspaceDir() string {
	return filepath.Join(w.Root, "workspace")
}

// SkillsDir returns the reusable script-module directory.
func (w *Workspace) SkillsDir() string {
	return filepath.Join(w.WorkspaceDir(), "skills")
}

// RunsDir returns the directory where in-flight script files are staged.
func (w *Workspace) RunsDir() string {
	return filepath.Join(w.WorkspaceDir(), ".runs")
}

// GeneratedDir returns the root of the generated binding tree.
func (w *Workspace) GeneratedDir() string {
	return filepath.Join(w.Root, "generated")
}

// DataDir returns the persistent data directory (execution history).
func (w *Workspace) DataDir() string {
	return filepath.Join(w.Root, "data")
}

// OAuthDir returns the broker's storage root.
func (w *Workspace) OAuthDir() string {
	return filepath.Join(w.Root, ".oauth")
}
