package skill

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed catalog/*.md
var catalogFS embed.FS

// Registry holds the loaded skill catalog.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// LoadEmbedded returns a registry populated from the built-in catalog.
func LoadEmbedded() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFS(catalogFS, "catalog"); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadFS loads every .md skill document under dir in fsys. Documents with
// the same name override earlier ones.
func (r *Registry) LoadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read skill catalog: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		f, err := fsys.Open(dir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("open skill %s: %w", entry.Name(), err)
		}
		sk, err := Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parse skill %s: %w", entry.Name(), err)
		}
		if sk.Name == "" {
			sk.Name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		r.Register(sk)
	}
	return nil
}

// Register adds a skill, replacing any previous skill with the same name.
func (r *Registry) Register(sk *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[strings.ToLower(sk.Name)] = sk
}

// Get retrieves a skill by name (case-insensitive).
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.skills[strings.ToLower(name)]
	return sk, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skills := make([]*Skill, 0, len(r.skills))
	for _, sk := range r.skills {
		skills = append(skills, sk)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Search returns skills matching the query. Every whitespace-separated term
// must match the name, description or a tag. An empty query returns the
// whole catalog.
func (r *Registry) Search(query string) []*Skill {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return r.List()
	}

	var out []*Skill
	for _, sk := range r.List() {
		all := true
		for _, term := range terms {
			if !sk.matches(term) {
				all = false
				break
			}
		}
		if all {
			out = append(out, sk)
		}
	}
	return out
}
