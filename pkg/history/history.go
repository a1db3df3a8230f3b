package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/menta2k/phytoguard/pkg/diagnosis"
)

// ErrNotFound is returned for unknown record ids
var ErrNotFound = errors.New("history: record not found")

// Store is the caller-owned diagnosis history. Records are only ever
// added; existing records keep their relative order.
type Store struct {
	mu      sync.Mutex
	records []diagnosis.Record // oldest first
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// Append adds a record as the newest entry
func (s *Store) Append(rec diagnosis.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// List returns all records, newest first
func (s *Store) List() []diagnosis.Record {
	return s.filter(func(diagnosis.Record) bool { return true })
}

// Active returns records that are not archived, newest first
func (s *Store) Active() []diagnosis.Record {
	return s.filter(func(r diagnosis.Record) bool { return !r.Archived })
}

// Archived returns archived records, newest first
func (s *Store) Archived() []diagnosis.Record {
	return s.filter(func(r diagnosis.Record) bool { return r.Archived })
}

func (s *Store) filter(keep func(diagnosis.Record) bool) []diagnosis.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]diagnosis.Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if keep(s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out
}

// Get returns the newest record with the given id
func (s *Store) Get(id string) (diagnosis.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			return s.records[i], nil
		}
	}
	return diagnosis.Record{}, ErrNotFound
}

// ToggleArchived flips the archived flag of a record and returns the new value
func (s *Store) ToggleArchived(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			s.records[i].Archived = !s.records[i].Archived
			return s.records[i].Archived, nil
		}
	}
	return false, ErrNotFound
}

// Save writes the history as JSON, newest first
func (s *Store) Save(path string) error {
	data, err := json.MarshalIndent(s.List(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// Load reads a history file written by Save. A missing file yields an
// empty store.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var newestFirst []diagnosis.Record
	if err := json.Unmarshal(data, &newestFirst); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}

	s := New()
	for i := len(newestFirst) - 1; i >= 0; i-- {
		s.records = append(s.records, newestFirst[i])
	}
	return s, nil
}
