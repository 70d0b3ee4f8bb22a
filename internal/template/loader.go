package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// templateFile is the on-disk shape: one file may declare several templates.
type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// LoadFile parses and validates every template declared in a YAML file.
func LoadFile(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", filepath.Base(path), err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("parse templates %s: no templates declared", filepath.Base(path))
	}

	seen := make(map[string]bool, len(file.Templates))
	for _, t := range file.Templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("template %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
	}
	return file.Templates, nil
}

// LoadDir loads every *.yaml / *.yml file in a directory, sorted by name so
// the rotation order is deterministic.
func LoadDir(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []*Template
	ids := make(map[string]bool)
	for _, name := range names {
		templates, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			if ids[t.ID] {
				return nil, fmt.Errorf("template %s: duplicate id across files", t.ID)
			}
			ids[t.ID] = true
			all = append(all, t)
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no templates found in %s", dir)
	}
	return all, nil
}
