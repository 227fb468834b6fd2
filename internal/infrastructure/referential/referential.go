// Package referential loads the organisation's directions, services, posts
// and grades from a YAML file.
package referential

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one coded item of the referential
type Entry struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"libelle"`
}

// Document is the file layout
type Document struct {
	Directions []Entry `yaml:"directions"`
	Services   []Entry `yaml:"services"`
	Posts      []Entry `yaml:"posts"`
	Grades     []Entry `yaml:"grades"`
}

// Store answers lookups by code. Codes compare case-insensitively.
type Store struct {
	directions map[string]Entry
	services   map[string]Entry
	posts      map[string]Entry
	grades     map[string]Entry
}

// Load reads a referential file
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read referential: %w", err)
	}
	return Parse(data)
}

// Parse builds a store from YAML content
func Parse(data []byte) (*Store, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse referential: %w", err)
	}
	return New(doc)
}

// New builds a store from an in-memory document
func New(doc Document) (*Store, error) {
	s := &Store{}
	var err error
	if s.directions, err = index("directions", doc.Directions); err != nil {
		return nil, err
	}
	if s.services, err = index("services", doc.Services); err != nil {
		return nil, err
	}
	if s.posts, err = index("posts", doc.Posts); err != nil {
		return nil, err
	}
	if s.grades, err = index("grades", doc.Grades); err != nil {
		return nil, err
	}
	return s, nil
}

func index(section string, entries []Entry) (map[string]Entry, error) {
	m := make(map[string]Entry, len(entries))
	for i, e := range entries {
		code := normalize(e.Code)
		if code == "" {
			return nil, fmt.Errorf("%s[%d]: code is required", section, i)
		}
		if _, dup := m[code]; dup {
			return nil, fmt.Errorf("%s: duplicate code %s", section, e.Code)
		}
		if e.Label == "" {
			e.Label = e.Code
		}
		m[code] = e
	}
	return m, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HasPost reports whether code is a known post
func (s *Store) HasPost(code string) bool {
	_, ok := s.posts[normalize(code)]
	return ok
}

// HasLocation reports whether code is a known direction or service
func (s *Store) HasLocation(code string) bool {
	c := normalize(code)
	if _, ok := s.directions[c]; ok {
		return true
	}
	_, ok := s.services[c]
	return ok
}

// HasGrade reports whether code is a known grade
func (s *Store) HasGrade(code string) bool {
	_, ok := s.grades[normalize(code)]
	return ok
}

// PostLabel returns the label of a post, or the code when unknown
func (s *Store) PostLabel(code string) string {
	return label(s.posts, code)
}

// LocationLabel returns the label of a direction or service, or the code
// when unknown
func (s *Store) LocationLabel(code string) string {
	if e, ok := s.directions[normalize(code)]; ok {
		return e.Label
	}
	return label(s.services, code)
}

// Directions returns all directions sorted by code
func (s *Store) Directions() []Entry { return sorted(s.directions) }

// Posts returns all posts sorted by code
func (s *Store) Posts() []Entry { return sorted(s.posts) }

func label(m map[string]Entry, code string) string {
	if e, ok := m[normalize(code)]; ok {
		return e.Label
	}
	return code
}

func sorted(m map[string]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
