package sources

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source is a named collection of feed URLs, used by the digest
// endpoints.
type Source struct {
	Name  string   `yaml:"name" json:"name"`
	Feeds []string `yaml:"feeds" json:"feeds"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Store loads and caches the source collections from a YAML file.
type Store struct {
	path   string
	mu     sync.RWMutex
	byName map[string]Source
	order  []string
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		byName: make(map[string]Source),
	}
}

// Load reads the sources file. A missing file yields an empty store, not
// an error, so the digest endpoints stay usable with explicit URLs.
func (s *Store) Load() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		slog.Debug("Sources file not found, starting empty", "path", s.path)
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read sources file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	byName := make(map[string]Source, len(parsed.Sources))
	order := make([]string, 0, len(parsed.Sources))
	for i, source := range parsed.Sources {
		if err := validateSource(source); err != nil {
			return fmt.Errorf("invalid source at index %d: %w", i, err)
		}
		if _, ok := byName[source.Name]; ok {
			return fmt.Errorf("duplicate source name %q", source.Name)
		}
		byName[source.Name] = source
		order = append(order, source.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName = byName
	s.order = order

	slog.Debug("Sources loaded", "path", s.path, "count", len(order))
	return nil
}

func (s *Store) Get(name string) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source, ok := s.byName[name]
	return source, ok
}

// All returns the sources in file order.
func (s *Store) All() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Source, 0, len(s.order))
	for _, name := range s.order {
		all = append(all, s.byName[name])
	}
	return all
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

func validateSource(source Source) error {
	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if len(source.Feeds) == 0 {
		return fmt.Errorf("source %q must list at least one feed", source.Name)
	}
	for _, feed := range source.Feeds {
		u, err := url.Parse(feed)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("source %q has invalid feed URL %q", source.Name, feed)
		}
	}
	return nil
}
