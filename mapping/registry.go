package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds the categories the importer knows how to map.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]*Mapping
}

func NewRegistry() *Registry {
	return &Registry{mappings: make(map[string]*Mapping)}
}

// DefaultRegistry returns a registry with the built-in mappings.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := r.Register(CPU()); err != nil {
		panic(err)
	}
	return r
}

// Register validates and adds a mapping, replacing any mapping for the same category.
func (r *Registry) Register(m *Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[m.Code()] = m
	return nil
}

// RegisterNew validates and adds a mapping unless its category is already registered.
func (r *Registry) RegisterNew(m *Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappings[m.Code()]; exists {
		return fmt.Errorf("%w: %s", ErrCategoryExists, m.Code())
	}
	r.mappings[m.Code()] = m
	return nil
}

// Lookup finds the mapping for a category label, ignoring case and surrounding space.
func (r *Registry) Lookup(category string) (*Mapping, bool) {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[key]
	return m, ok
}

// Categories lists the registered category labels in sorted order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m.Category)
	}
	sort.Strings(out)
	return out
}

// Definition is the serialised form of a mapping, read from YAML files or
// posted to the admin API.
type Definition struct {
	Category    string  `yaml:"category" json:"category"`
	Name        string  `yaml:"name" json:"name"`
	Directory   string  `yaml:"directory" json:"directory"`
	InheritBase bool    `yaml:"inherit_base" json:"inherit_base"`
	Fields      []Field `yaml:"fields" json:"fields"`
}

// Mapping builds the mapping described by d. Name and Directory default to
// the category label. The result still needs Validate.
func (d Definition) Mapping() *Mapping {
	m := &Mapping{
		Category:  strings.TrimSpace(d.Category),
		Name:      d.Name,
		Directory: d.Directory,
	}
	if m.Name == "" {
		m.Name = m.Category
	}
	if m.Directory == "" {
		m.Directory = m.Category
	}
	if d.InheritBase {
		m.Fields = append(m.Fields, BaseFields()...)
	}
	m.Fields = append(m.Fields, d.Fields...)
	return m
}

// LoadFile reads a YAML mapping definition.
func LoadFile(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMapping, path, err)
	}
	return d.Mapping(), nil
}

// LoadDir registers every *.yaml / *.yml mapping found in dir and returns the
// categories it added.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read mappings dir: %w", err)
	}

	var added []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		m, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return added, err
		}
		if err := r.Register(m); err != nil {
			return added, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		added = append(added, m.Category)
	}
	return added, nil
}

// All returns the registered mappings ordered by category code.
func (r *Registry) All() []*Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Mapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out
}
