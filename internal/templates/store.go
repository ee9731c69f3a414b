// Package templates persists reusable plans as YAML files in the user's
// config directory and keeps an in-memory cache refreshed by a file
// watcher, so externally edited templates are picked up without restart.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/weave/pkg/models"
)

// DefaultDir returns the default template directory.
func DefaultDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "weave", "templates")
}

// Store manages named plan templates on disk.
type Store struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*models.Plan

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore opens a template store at dir, creating it if needed, and
// loads all existing templates. A file watcher keeps the cache fresh;
// when the watcher cannot be created the store still works, reading
// from disk on cache misses.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create template directory: %w", err)
	}

	s := &Store{
		dir:   dir,
		cache: make(map[string]*models.Plan),
		done:  make(chan struct{}),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher.
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

// loadAll reads every template file in the directory into the cache.
func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read template directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		plan, err := readTemplate(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			// A broken template file must not take down the store.
			continue
		}
		s.cache[templateName(entry.Name())] = plan
	}
	return nil
}

// watch refreshes the cache as template files change on disk.
func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !isTemplateFile(filepath.Base(event.Name)) {
				continue
			}
			name := templateName(filepath.Base(event.Name))
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if plan, err := readTemplate(event.Name); err == nil {
					s.mu.Lock()
					s.cache[name] = plan
					s.mu.Unlock()
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				s.mu.Lock()
				delete(s.cache, name)
				s.mu.Unlock()
			}
		case <-s.watcher.Errors:
			// Keep watching.
		}
	}
}

// Save validates and writes a plan as the template named by its ID.
func (s *Store) Save(plan *models.Plan) error {
	if plan.ID == "" {
		return fmt.Errorf("template plan has no id")
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal template %s: %w", plan.ID, err)
	}

	path := filepath.Join(s.dir, plan.ID+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write template %s: %w", plan.ID, err)
	}

	s.mu.Lock()
	s.cache[plan.ID] = plan
	s.mu.Unlock()
	return nil
}

// Load returns the template with the given name. On a cache miss it
// falls back to reading the file directly.
func (s *Store) Load(name string) (*models.Plan, error) {
	s.mu.RLock()
	plan, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return plan, nil
	}

	plan, err := readTemplate(filepath.Join(s.dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache[name] = plan
	s.mu.Unlock()
	return plan, nil
}

// List returns the names of all templates, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.cache))
	for name := range s.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete removes a template.
func (s *Store) Delete(name string) error {
	path := filepath.Join(s.dir, name+".yaml")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete template %s: %w", name, err)
	}

	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
	return nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close stops the file watcher.
func (s *Store) Close() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// readTemplate parses and validates one template file.
func readTemplate(path string) (*models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	var plan models.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if plan.ID == "" {
		plan.ID = templateName(filepath.Base(path))
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func isTemplateFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func templateName(filename string) string {
	name := strings.TrimSuffix(filename, ".yaml")
	return strings.TrimSuffix(name, ".yml")
}
