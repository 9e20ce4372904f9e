// Package catalog loads the static course catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type file struct {
	Courses []model.Course `yaml:"courses"`
}

// Catalog is an immutable, ordered set of courses.
type Catalog struct {
	courses []model.Course
	byID    map[string]int
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML catalog data.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(f.Courses) == 0 {
		return nil, fmt.Errorf("catalog has no courses defined")
	}
	c := &Catalog{byID: make(map[string]int, len(f.Courses))}
	for i, course := range f.Courses {
		if course.ID == "" {
			return nil, fmt.Errorf("course #%d: id is required", i)
		}
		if course.Title == "" {
			return nil, fmt.Errorf("course %q: title is required", course.ID)
		}
		if course.Price < 0 {
			return nil, fmt.Errorf("course %q: negative price", course.ID)
		}
		if _, dup := c.byID[course.ID]; dup {
			return nil, fmt.Errorf("course %q: duplicate id", course.ID)
		}
		course.Free = course.Price == 0
		c.byID[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}
	return c, nil
}

// All returns every course in catalog order.
func (c *Catalog) All() []model.Course {
	return append([]model.Course(nil), c.courses...)
}

// Get returns the course with id or errs.ErrNotFound.
func (c *Catalog) Get(id string) (model.Course, error) {
	i, ok := c.byID[id]
	if !ok {
		return model.Course{}, fmt.Errorf("course %q: %w", id, errs.ErrNotFound)
	}
	return c.courses[i], nil
}

// GetMany resolves ids in order, failing on the first unknown id.
func (c *Catalog) GetMany(ids []string) ([]model.Course, error) {
	out := make([]model.Course, 0, len(ids))
	for _, id := range ids {
		course, err := c.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, course)
	}
	return out, nil
}

// Search filters by a case-insensitive term over title and description and by exact
// category (case-insensitive). Empty arguments match everything.
func (c *Catalog) Search(term, category string) []model.Course {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]model.Course, 0)
	for _, course := range c.courses {
		if category != "" && !strings.EqualFold(course.Category, category) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(course.Title), term) &&
			!strings.Contains(strings.ToLower(course.Description), term) {
			continue
		}
		out = append(out, course)
	}
	return out
}

// Categories returns the distinct categories in sorted order.
func (c *Catalog) Categories() []string {
	seen := map[string]struct{}{}
	for _, course := range c.courses {
		seen[course.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
