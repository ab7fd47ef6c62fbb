// pkg/state/store.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/David-Botos/snowplan/pkg/model"
)

// State is the durable snapshot shape.
type State struct {
	Objects map[string]model.ObjectRecord `json:"objects"`
}

// Store owns the object map. Snapshot workers upsert under the lock;
// Save writes the whole map as one document, replacing the previous
// snapshot so real deletions surface as missing keys.
type Store struct {
	path string

	mu      sync.Mutex
	objects map[string]model.ObjectRecord
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		objects: make(map[string]model.ObjectRecord),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot file. A missing file yields an empty store,
// which is the normal first-run condition.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.objects = make(map[string]model.ObjectRecord)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state %s: %w", s.path, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("parse state %s: %w", s.path, err)
	}
	if state.Objects == nil {
		state.Objects = make(map[string]model.ObjectRecord)
	}

	s.mu.Lock()
	s.objects = state.Objects
	s.mu.Unlock()
	return nil
}

// Save persists the full map, overwriting any previous snapshot.
func (s *Store) Save() error {
	s.mu.Lock()
	raw, err := json.MarshalIndent(State{Objects: s.objects}, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}

// Upsert inserts or replaces one record. The key is supplied by the
// caller because procedure and function keys use the clean name while
// the record's fqn keeps the argument signature.
func (s *Store) Upsert(key string, record model.ObjectRecord) {
	s.mu.Lock()
	s.objects[key] = record
	s.mu.Unlock()
}

// Objects returns a copy of the map, safe to read while workers run.
func (s *Store) Objects() map[string]model.ObjectRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects := make(map[string]model.ObjectRecord, len(s.objects))
	for k, v := range s.objects {
		objects[k] = v
	}
	return objects
}

// Len reports the number of tracked objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
