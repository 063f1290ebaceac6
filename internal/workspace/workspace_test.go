package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspace_PathHelpers(t *testing.T) {
	t.Parallel()

	ws := New("/hub")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"WorkspaceDir", ws.WorkspaceDir(), filepath.Join("/hub", "workspace")},
		{"SkillsDir", ws.SkillsDir(), filepath.Join("/hub", "workspace", "skills")},
		{"RunsDir", ws.RunsDir(), filepath.Join("/hub", "workspace", ".runs")},
		{"GeneratedDir", ws.GeneratedDir(), filepath.Join("/hub", "generated")},
		{"DataDir", ws.DataDir(), filepath.Join("/hub", "data")},
		{"OAuthDir", ws.OAuthDir(), filepath.Join("/hub", ".oauth")},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestWorkspace_EnsureStructure(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "hub")
	ws := New(root)

	if err := ws.EnsureStructure(); err != nil {
		t.Fatalf("EnsureStructure() error: %v", err)
	}

	for _, dir := range []string{ws.WorkspaceDir(), ws.SkillsDir(), ws.RunsDir(), ws.GeneratedDir(), ws.DataDir(), ws.OAuthDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("missing %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s should be a directory", dir)
		}
	}

	// Idempotent.
	if err := ws.EnsureStructure(); err != nil {
		t.Errorf("second EnsureStructure() error: %v", err)
	}
}
