package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for skill parsing.
var (
	ErrNoFrontmatter    = errors.New("skill: missing YAML frontmatter")
	ErrMissingSkillName = errors.New("skill: missing required 'name' field")
)

// SkillMeta holds the optional YAML frontmatter of a skill module's
// companion .md file. Skills themselves are ordinary script modules the
// system never parses; the metadata only feeds listings.
type SkillMeta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// Skill represents one entry under the skills directory.
type Skill struct {
	Meta SkillMeta
	Body string // markdown content after frontmatter
	Path string // source file path (for diagnostics)
}

// ParseSkill parses a skill .md file content into a Skill.
// The content must start with YAML frontmatter delimited by "---".
func ParseSkill(content, path string) (Skill, error) {
	front, body, err := splitFrontmatter(content)
	if err != nil {
		return Skill{}, err
	}

	var meta SkillMeta
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return Skill{}, fmt.Errorf("skill: invalid YAML in %s: %w", path, err)
	}
	if meta.Name == "" {
		return Skill{}, fmt.Errorf("%w in %s", ErrMissingSkillName, path)
	}

	return Skill{
		Meta: meta,
		Body: strings.TrimSpace(body),
		Path: path,
	}, nil
}

// ListSkills loads all .md descriptions from the skills directory.
// Returns nil without error if the directory does not exist.
// Unparseable files are skipped silently.
func (w *Workspace) ListSkills() ([]Skill, error) {
	entries, err := os.ReadDir(w.SkillsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	skills := make([]Skill, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(w.SkillsDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		skill, err := ParseSkill(string(data), path)
		if err != nil {
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// splitFrontmatter splits content into YAML frontmatter and body.
// The content must begin with "---\n" and have a later line starting with
// "---" that closes the frontmatter.
func splitFrontmatter(content string) (front, body string, err error) {
	const delimiter = "---"

	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, delimiter) {
		return "", "", ErrNoFrontmatter
	}

	rest := content[len(delimiter):]
	if len(rest) == 0 || rest[0] != '\n' {
		return "", "", ErrNoFrontmatter
	}
	rest = rest[1:]

	idx := strings.Index(rest, "\n"+delimiter)
	if idx < 0 {
		return "", "", ErrNoFrontmatter
	}

	front = rest[:idx]
	body = rest[idx+1+len(delimiter):]
	return front, body, nil
}
