package preference

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the raw preference document.
type Store interface {
	Save(data []byte) error

	// Load returns nil data when nothing has been saved yet.
	Load() ([]byte, error)

	Close() error
}

// JSONStore keeps the document in a file. An empty path disables persistence.
type JSONStore struct {
	FilePath string
}

// NewJSONStore creates a file store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{FilePath: path}
}

// Save writes the file through a temporary sibling so a crash never leaves
// a truncated document behind.
func (s *JSONStore) Save(data []byte) error {
	if s.FilePath == "" {
		return nil
	}

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp := s.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, s.FilePath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Load reads the file.
func (s *JSONStore) Load() ([]byte, error) {
	if s.FilePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}

// MemoryStore keeps the document in memory.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryStore creates a store holding data.
func NewMemoryStore(data []byte) *MemoryStore {
	return &MemoryStore{data: data}
}

func (m *MemoryStore) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *MemoryStore) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

// SaveCount returns how often Save was called.
func (m *MemoryStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ Store = (*JSONStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
