// Package registry persists which programs sieve has left attached, so a
// later invocation can tear them down.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when no entry matches a lookup.
var ErrNotFound = errors.New("no loaded program recorded")

// Entry describes one attached program.
type Entry struct {
	ID          int                 `json:"id"`
	Name        string              `json:"name"`
	Interface   string              `json:"interface"`
	AttachFlags string              `json:"attachFlags"`
	Target      string              `json:"target"`
	PinPath     string              `json:"pinPath"`
	Preload     map[string][]string `json:"preload"`
	LoadedAt    time.Time           `json:"loadedAt"`
}

// Registry is the on-disk document.
type Registry struct {
	ProgramIDs []int   `json:"programIds"`
	Programs   []Entry `json:"programs"`
}

// Empty reports whether nothing is recorded.
func (r *Registry) Empty() bool {
	return len(r.Programs) == 0
}

// Lookup finds the entry for program name on target with the given id, or
// the most recently loaded one when id is 0.
func (r *Registry) Lookup(target, name string, id int) (Entry, error) {
	for i := len(r.Programs) - 1; i >= 0; i-- {
		e := r.Programs[i]
		if e.Target != target || e.Name != name {
			continue
		}
		if id == 0 || e.ID == id {
			return e, nil
		}
	}
	if id != 0 {
		return Entry{}, fmt.Errorf("%w: program %s (%d) on %s", ErrNotFound, name, id, target)
	}
	return Entry{}, fmt.Errorf("%w: program %s on %s", ErrNotFound, name, target)
}

func (r *Registry) add(e Entry) {
	r.remove(e.Target, e.ID)
	r.Programs = append(r.Programs, e)
	r.ProgramIDs = append(r.ProgramIDs, e.ID)
}

func (r *Registry) remove(target string, id int) bool {
	removed := false
	programs := r.Programs[:0]
	for _, e := range r.Programs {
		if e.Target == target && e.ID == id {
			removed = true
			continue
		}
		programs = append(programs, e)
	}
	r.Programs = programs

	r.ProgramIDs = r.ProgramIDs[:0]
	for _, e := range r.Programs {
		r.ProgramIDs = append(r.ProgramIDs, e.ID)
	}
	return removed
}

// Store reads and rewrites the registry file. Every change rewrites the
// whole file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// Load reads the registry. A missing or empty file is an empty registry.
func (s *Store) Load() (*Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Registry, error) {
	r := &Registry{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", s.path, err)
	}
	return r, nil
}

func (s *Store) save(r *Registry) error {
	if r.ProgramIDs == nil {
		r.ProgramIDs = []int{}
	}
	if r.Programs == nil {
		r.Programs = []Entry{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	// Write atomically
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Add records an attached program, replacing any entry with the same target
// and id.
func (s *Store) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	r.add(e)
	return s.save(r)
}

// Remove deletes the entry for target and id.
func (s *Store) Remove(target string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load()
	if err != nil {
		return err
	}
	if !r.remove(target, id) {
		return fmt.Errorf("%w: program %d on %s", ErrNotFound, id, target)
	}
	return s.save(r)
}
