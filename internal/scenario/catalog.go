// Package scenario resolves scenarios from the on-disk catalog. Every .txt,
// .md or .json file below the catalog root is a scenario; its name is the
// file name without extension and its category is the directory path relative
// to the root.
package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a scenario is not in the catalog.
var ErrNotFound = errors.New("scenario not found")

// RootGroup labels scenarios stored directly under the catalog root.
const RootGroup = "root"

var extensions = map[string]bool{".txt": true, ".md": true, ".json": true}

// Scenario is one catalog entry.
type Scenario struct {
	Name string
	// Category is slash separated and empty for top-level scenarios.
	Category string
	Path     string
}

// Group is a category with the sorted names of its scenarios.
type Group struct {
	Category string
	Names    []string
}

// Catalog reads scenarios from a directory tree.
type Catalog struct {
	root string
	log  *zap.Logger
}

// NewCatalog creates a catalog rooted at root.
func NewCatalog(root string, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{root: root, log: log.Named("scenario")}
}

// Root returns the catalog directory.
func (c *Catalog) Root() string {
	return c.root
}

// List walks the catalog in lexical order. A missing root yields an empty
// list. When two files share a name the first one walked wins.
func (c *Catalog) List() ([]Scenario, error) {
	if _, err := os.Stat(c.root); errors.Is(err, fs.ErrNotExist) {
		c.log.Warn("scenario directory not found", zap.String("root", c.root))
		return nil, nil
	}

	var out []Scenario
	seen := make(map[string]bool)
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !extensions[filepath.Ext(d.Name())] {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if seen[name] {
			c.log.Warn("duplicate scenario name ignored", zap.String("name", name), zap.String("path", path))
			return nil
		}
		seen[name] = true

		rel, err := filepath.Rel(c.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		category := filepath.ToSlash(rel)
		if category == "." {
			category = ""
		}
		out = append(out, Scenario{Name: name, Category: category, Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk scenarios: %w", err)
	}
	return out, nil
}

// Find returns the scenario called name.
func (c *Catalog) Find(name string) (Scenario, error) {
	all, err := c.List()
	if err != nil {
		return Scenario{}, err
	}
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Category returns the category of name and whether it was found.
func (c *Catalog) Category(name string) (string, bool) {
	s, err := c.Find(name)
	if err != nil {
		return "", false
	}
	return s.Category, true
}

// Intent returns the natural-language intent text of a scenario.
func (c *Catalog) Intent(name string) (string, error) {
	s, err := c.Find(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read scenario %s: %w", s.Path, err)
	}
	if filepath.Ext(s.Path) == ".json" {
		if intent, ok := structuredIntent(data); ok {
			return intent, nil
		}
	}
	return string(data), nil
}

// Grouped returns scenarios grouped by category, categories and names sorted.
// Top-level scenarios are grouped under RootGroup.
func (c *Catalog) Grouped() ([]Group, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string][]string)
	for _, s := range all {
		key := s.Category
		if key == "" {
			key = RootGroup
		}
		byCategory[key] = append(byCategory[key], s.Name)
	}

	groups := make([]Group, 0, len(byCategory))
	for category, names := range byCategory {
		sort.Strings(names)
		groups = append(groups, Group{Category: category, Names: names})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Category < groups[j].Category })
	return groups, nil
}

// jsonScenario is the optional structured form of a .json scenario.
type jsonScenario struct {
	Intent string   `yaml:"intent"`
	Steps  []string `yaml:"steps"`
}

// structuredIntent renders a .json scenario that uses the intent/steps
// layout. Any other document is used verbatim.
func structuredIntent(data []byte) (string, bool) {
	var doc jsonScenario
	if err := yaml.Unmarshal(data, &doc); err != nil || doc.Intent == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteString(doc.Intent)
	for i, step := range doc.Steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, step)
	}
	return b.String(), true
}
