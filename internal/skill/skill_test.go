package skill

import (
	"strings"
	"testing"
)

func TestParseFrontmatter(t *testing.T) {
	doc := `---
name: test-skill
description: A skill for testing
tags: [alpha, beta]
---

# Test Skill

Do the thing.`

	sk, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if sk.Name != "test-skill" {
		t.Errorf("Name = %q, want test-skill", sk.Name)
	}
	if sk.Description != "A skill for testing" {
		t.Errorf("Description = %q", sk.Description)
	}
	if len(sk.Tags) != 2 || sk.Tags[0] != "alpha" {
		t.Errorf("Tags = %v", sk.Tags)
	}
	if !strings.Contains(sk.Instructions, "Do the thing.") {
		t.Errorf("Instructions missing body: %q", sk.Instructions)
	}
	if strings.Contains(sk.Instructions, "description:") {
		t.Errorf("Instructions leaked frontmatter: %q", sk.Instructions)
	}
}

func TestParseWithoutFrontmatter(t *testing.T) {
	sk, err := Parse(strings.NewReader("Just instructions.\nSecond line."))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if sk.Name != "" {
		t.Errorf("Name = %q, want empty", sk.Name)
	}
	if !strings.HasPrefix(sk.Instructions, "Just instructions.") {
		t.Errorf("Instructions = %q", sk.Instructions)
	}
}

func TestLoadEmbedded(t *testing.T) {
	r, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded failed: %v", err)
	}
	if len(r.List()) == 0 {
		t.Fatal("embedded catalog is empty")
	}
	if _, ok := r.Get("slide-layout"); !ok {
		t.Error("slide-layout skill not found")
	}
	// Case-insensitive lookup.
	if _, ok := r.Get("Slide-Layout"); !ok {
		t.Error("lookup should be case-insensitive")
	}
}

func TestSearch(t *testing.T) {
	r := NewRegistry()
	r.Register(&Skill{Name: "color-palette", Description: "Pick colors", Tags: []string{"color", "style"}})
	r.Register(&Skill{Name: "charts", Description: "Chart slides", Tags: []string{"data"}})

	got := r.Search("color")
	if len(got) != 1 || got[0].Name != "color-palette" {
		t.Errorf("Search(color) = %v", names(got))
	}

	// Every term must match.
	if got := r.Search("color charts"); len(got) != 0 {
		t.Errorf("Search(color charts) = %v, want none", names(got))
	}

	// Empty query returns everything.
	if got := r.Search(""); len(got) != 2 {
		t.Errorf("Search() = %v, want 2 skills", names(got))
	}

	// Tag match.
	if got := r.Search("data"); len(got) != 1 || got[0].Name != "charts" {
		t.Errorf("Search(data) = %v", names(got))
	}
}

func names(skills []*Skill) []string {
	out := make([]string, len(skills))
	for i, sk := range skills {
		out[i] = sk.Name
	}
	return out
}
