// Package curriculum provides the launch checklist: task categories and the
// definitions of the guided exercises linked from them.
//
// The built-in curriculum is embedded. An override file with the same layout
// can replace it at runtime (see Watcher).
package curriculum

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/blogpad/launchpad/internal/guide"
)

//go:embed curriculum.yaml
var builtin []byte

// FileName is the name of an override file inside the curriculum directory.
const FileName = "curriculum.yaml"

// Task is one checklist item.
type Task struct {
	ID    string `yaml:"id" json:"id"`
	Text  string `yaml:"text" json:"text"`
	Time  string `yaml:"time,omitempty" json:"time,omitempty"`
	Hint  string `yaml:"hint,omitempty" json:"hint,omitempty"`
	Day   int    `yaml:"day,omitempty" json:"day,omitempty"`
	Guide string `yaml:"guide,omitempty" json:"guide,omitempty"` // linked guide id
}

// Category groups tasks shown together on the dashboard.
type Category struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Tasks    []Task `yaml:"tasks" json:"tasks"`
}

// TaskIDs returns the ids of the category's tasks in order.
func (c Category) TaskIDs() []string {
	ids := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// Catalog is a validated curriculum.
type Catalog struct {
	categories []Category
	guides     []*guide.Definition

	tasks      map[string]Task
	guideIndex map[string]*guide.Definition
}

type file struct {
	Categories []Category          `yaml:"categories"`
	Guides     []*guide.Definition `yaml:"guides"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded curriculum.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(builtin)
		if defaultErr != nil {
			defaultErr = fmt.Errorf("embedded curriculum: %w", defaultErr)
		}
	})
	return defaultCatalog, defaultErr
}

// LoadFile reads and validates a curriculum file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curriculum %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid curriculum %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates curriculum YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse curriculum: %w", err)
	}
	return build(f)
}

func build(f file) (*Catalog, error) {
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("at least one category is required")
	}

	c := &Catalog{
		categories: f.Categories,
		guides:     f.Guides,
		tasks:      make(map[string]Task),
		guideIndex: make(map[string]*guide.Definition),
	}

	for _, g := range f.Guides {
		if g == nil {
			return nil, fmt.Errorf("empty guide entry")
		}
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.guideIndex[g.ID]; dup {
			return nil, fmt.Errorf("duplicate guide id %q", g.ID)
		}
		c.guideIndex[g.ID] = g
	}

	seenCategory := make(map[string]bool)
	for _, cat := range f.Categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("category without id")
		}
		if seenCategory[cat.ID] {
			return nil, fmt.Errorf("duplicate category id %q", cat.ID)
		}
		seenCategory[cat.ID] = true

		for _, t := range cat.Tasks {
			if t.ID == "" {
				return nil, fmt.Errorf("category %s: task without id", cat.ID)
			}
			if _, dup := c.tasks[t.ID]; dup {
				return nil, fmt.Errorf("duplicate task id %q", t.ID)
			}
			if t.Guide != "" {
				if _, ok := c.guideIndex[t.Guide]; !ok {
					return nil, fmt.Errorf("task %s links unknown guide %q", t.ID, t.Guide)
				}
			}
			c.tasks[t.ID] = t
		}
	}

	for _, g := range f.Guides {
		for _, link := range []string{g.Prev, g.Next} {
			if link == "" {
				continue
			}
			if _, ok := c.guideIndex[link]; !ok {
				return nil, fmt.Errorf("guide %s links unknown guide %q", g.ID, link)
			}
		}
	}

	return c, nil
}

// Categories returns the categories in display order.
func (c *Catalog) Categories() []Category {
	return c.categories
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// Task looks up a task by id.
func (c *Catalog) Task(id string) (Task, bool) {
	t, ok := c.tasks[id]
	return t, ok
}

// TaskIDs returns every task id in display order.
func (c *Catalog) TaskIDs() []string {
	var ids []string
	for _, cat := range c.categories {
		ids = append(ids, cat.TaskIDs()...)
	}
	return ids
}

// Guide looks up a guide definition by id.
func (c *Catalog) Guide(id string) (*guide.Definition, bool) {
	g, ok := c.guideIndex[id]
	return g, ok
}

// Guides returns the guide definitions in file order.
func (c *Catalog) Guides() []*guide.Definition {
	return c.guides
}
