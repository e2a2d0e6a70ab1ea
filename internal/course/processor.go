package course

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/coursemate/coursemate/internal/log"
)

// Processor loads the catalog file and hands out cleaned views of it.
// Safe for concurrent use; Reload swaps the cached records atomically.
type Processor struct {
	path   string
	logger log.Logger

	mu      sync.RWMutex
	records []Record
	loaded  bool
}

// NewProcessor creates a processor for the catalog at path. The file is
// read lazily on first use.
func NewProcessor(path string, logger log.Logger) *Processor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Processor{path: path, logger: logger}
}

// Path returns the catalog file path.
func (p *Processor) Path() string { return p.path }

// Reload re-reads the catalog file, replacing any cached records.
func (p *Processor) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading course file %s: %w", p.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing course file %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.records = records
	p.loaded = true
	p.mu.Unlock()

	p.logger.Info("course catalog loaded", "path", p.path, "records", len(records))
	return nil
}

func (p *Processor) ensureLoaded() error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	return p.Reload()
}

// Courses returns the cleaned catalog: records missing a name or
// description are dropped.
func (p *Processor) Courses() ([]Course, error) {
	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	courses := make([]Course, 0, len(p.records))
	for _, r := range p.records {
		if c, ok := r.clean(); ok {
			courses = append(courses, c)
		}
	}
	if dropped := len(p.records) - len(courses); dropped > 0 {
		p.logger.Debug("dropped incomplete course records", "dropped", dropped)
	}
	return courses, nil
}

// Categories returns the distinct course categories, sorted.
func (p *Processor) Categories() ([]string, error) {
	courses, err := p.Courses()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, c := range courses {
		if c.Category != "" {
			seen[c.Category] = struct{}{}
		}
	}

	categories := make([]string, 0, len(seen))
	for cat := range seen {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	return categories, nil
}

// ByCategory returns the cleaned courses whose category matches exactly.
func (p *Processor) ByCategory(category string) ([]Course, error) {
	courses, err := p.Courses()
	if err != nil {
		return nil, err
	}

	var matched []Course
	for _, c := range courses {
		if c.Category == category {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// Documents prepares the cleaned catalog for embedding and storage.
func (p *Processor) Documents() ([]Document, error) {
	courses, err := p.Courses()
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(courses))
	for i, c := range courses {
		docs = append(docs, Document{
			ID:          strconv.Itoa(i),
			CourseID:    courseID(c, i),
			Title:       c.Name,
			Category:    c.Category,
			Description: c.Description,
			Content:     SearchableText(c),
			Course:      c,
		})
	}
	return docs, nil
}
