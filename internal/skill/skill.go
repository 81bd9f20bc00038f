// Package skill provides the catalog of presentation-craft skills.
// Skills are markdown documents with YAML frontmatter; the model searches
// the catalog and pulls full instructions into context on demand.
package skill

import (
	"bufio"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one loaded skill with metadata and instructions.
type Skill struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Tags         []string `yaml:"tags"`
	Instructions string   `yaml:"-"`
}

// Parse reads a skill document: optional YAML frontmatter between ---
// markers, then markdown instructions. A document without frontmatter is
// all instructions.
func Parse(r io.Reader) (*Skill, error) {
	var frontmatter strings.Builder
	var content strings.Builder
	inFrontmatter := false
	frontmatterDone := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		if lineNum == 1 {
			if strings.TrimSpace(line) == "---" {
				inFrontmatter = true
				continue
			}
			content.WriteString(line)
			content.WriteString("\n")
			continue
		}

		if inFrontmatter && !frontmatterDone {
			if strings.TrimSpace(line) == "---" {
				inFrontmatter = false
				frontmatterDone = true
				continue
			}
			frontmatter.WriteString(line)
			frontmatter.WriteString("\n")
		} else {
			content.WriteString(line)
			content.WriteString("\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sk := &Skill{}
	if frontmatter.Len() > 0 {
		if err := yaml.Unmarshal([]byte(frontmatter.String()), sk); err != nil {
			return nil, err
		}
	}
	sk.Instructions = strings.TrimSpace(content.String())
	return sk, nil
}

// matches reports whether the skill matches a lowercase query term.
func (s *Skill) matches(term string) bool {
	if strings.Contains(strings.ToLower(s.Name), term) ||
		strings.Contains(strings.ToLower(s.Description), term) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}
