package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manager loads and saves profile files from a directory
type Manager struct {
	dir string
}

// NewManager creates a profile manager rooted at dir
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the profile directory
func (m *Manager) Dir() string {
	return m.dir
}

// Load resolves ref as a file path, then as <dir>/<ref>.json, then as a
// built-in profile name. Defaults are applied and the result is validated.
func (m *Manager) Load(ref string) (*Profile, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty profile reference")
	}

	for _, path := range m.candidates(ref) {
		p, err := loadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	if p, ok := Builtin(ref); ok {
		return p, nil
	}
	return nil, fmt.Errorf("profile %q not found (built-in: %s)", ref, strings.Join(BuiltinNames(), ", "))
}

func (m *Manager) candidates(ref string) []string {
	var paths []string
	if strings.HasSuffix(ref, ".json") || strings.ContainsRune(ref, filepath.Separator) {
		paths = append(paths, ref)
	}
	if m.dir != "" && !strings.ContainsRune(ref, filepath.Separator) {
		name := ref
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		paths = append(paths, filepath.Join(m.dir, name))
	}
	return paths
}

func loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes p to <dir>/<name>.json
func (m *Manager) Save(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	path := filepath.Join(m.dir, p.Name+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// List returns profile names found in the directory followed by built-ins
// that are not shadowed by a file
func (m *Manager) List() ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	entries, err := os.ReadDir(m.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range BuiltinNames() {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names, nil
}
