// Package procfile loads named process definitions from a project's
// .dev-orch.yaml file, so `dev-orch supervise web` works without spelling
// out the command every time.
package procfile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/dev-workspace-orchestrator/internal/domain"
)

// FileName is the per-project process definition file.
const FileName = ".dev-orch.yaml"

// File is a parsed process definition file.
type File struct {
	// Project overrides the project name derived from the directory.
	Project   string                     `yaml:"project,omitempty"`
	Processes []domain.ProcessDefinition `yaml:"processes"`

	// Dir is where the file was loaded from. Relative cwd entries resolve
	// against it.
	Dir string `yaml:"-"`
}

// Load reads the process definition file in dir. A missing file is not an
// error; it returns (nil, nil) so callers can fall back to an explicit
// command line.
func Load(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.Dir = dir

	seen := make(map[string]bool)
	for i, p := range f.Processes {
		if p.Name == "" {
			return nil, fmt.Errorf("%s: process %d has no name", path, i+1)
		}
		if p.Command == "" {
			return nil, fmt.Errorf("%s: process %q has no command", path, p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%s: duplicate process %q", path, p.Name)
		}
		seen[p.Name] = true
	}
	return &f, nil
}

// Find returns the definition for name with its working directory resolved
// against the file's directory.
func (f *File) Find(name string) (domain.ProcessDefinition, bool) {
	for _, p := range f.Processes {
		if p.Name != name {
			continue
		}
		if p.Cwd == "" {
			p.Cwd = f.Dir
		} else if !filepath.IsAbs(p.Cwd) {
			p.Cwd = filepath.Join(f.Dir, p.Cwd)
		}
		return p, true
	}
	return domain.ProcessDefinition{}, false
}

// Names lists the defined process names in file order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Processes))
	for _, p := range f.Processes {
		names = append(names, p.Name)
	}
	return names
}
