package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleSkill = `---
name: summarize
description: Summarize long documents
keywords: [summary, tldr]
---

Use the summarize helper from this module.
`

func TestParseSkill(t *testing.T) {
	t.Parallel()

	skill, err := ParseSkill(sampleSkill, "skills/summarize.md")
	if err != nil {
		t.Fatalf("ParseSkill() error: %v", err)
	}
	if skill.Meta.Name != "summarize" {
		t.Errorf("Name = %q", skill.Meta.Name)
	}
	if skill.Meta.Description != "Summarize long documents" {
		t.Errorf("Description = %q", skill.Meta.Description)
	}
	if len(skill.Meta.Keywords) != 2 {
		t.Errorf("Keywords = %v", skill.Meta.Keywords)
	}
	if skill.Body == "" {
		t.Error("Body should not be empty")
	}
}

func TestParseSkill_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"no frontmatter", "just text", ErrNoFrontmatter},
		{"unterminated frontmatter", "---\nname: x\n", ErrNoFrontmatter},
		{"missing name", "---\ndescription: y\n---\nbody", ErrMissingSkillName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseSkill(tt.content, "test.md")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestListSkills(t *testing.T) {
	t.Parallel()

	ws := New(t.TempDir())
	if err := ws.EnsureStructure(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(ws.SkillsDir(), "summarize.md"), []byte(sampleSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unparseable files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(ws.SkillsDir(), "broken.md"), []byte("no frontmatter"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-markdown files are ignored.
	if err := os.WriteFile(filepath.Join(ws.SkillsDir(), "helper.py"), []byte("def x(): pass"), 0o644); err != nil {
		t.Fatal(err)
	}

	skills, err := ws.ListSkills()
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 || skills[0].Meta.Name != "summarize" {
		t.Errorf("skills = %+v", skills)
	}
}

func TestListSkills_MissingDir(t *testing.T) {
	t.Parallel()

	ws := New(filepath.Join(t.TempDir(), "nope"))
	skills, err := ws.ListSkills()
	if err != nil || skills != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", skills, err)
	}
}
