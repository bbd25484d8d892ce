package neural

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// PersistenceError wraps a failed checkpoint read or write.
type PersistenceError struct {
	Path string
	Op   string // "load" or "save"
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pattern checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// snapshot is the serialized checkpoint form. AccessOrder is oldest-first
// so a load reconstructs the exact eviction order.
type snapshot struct {
	Patterns    map[string]*Pattern `msgpack:"patterns"`
	AccessOrder []string            `msgpack:"access_order"`
}

// Save writes the memory to path as a msgpack snapshot via
// write-to-temp-then-rename, so a concurrent reader never observes a
// partially written file. No-op when nothing changed since the last save.
func (m *PatternMemory) Save(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	data, err := msgpack.Marshal(snapshot{
		Patterns:    m.patterns,
		AccessOrder: m.accessOrder(),
	})
	if err != nil {
		return &PersistenceError{Path: path, Op: "save", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Path: path, Op: "save", Err: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &PersistenceError{Path: path, Op: "save", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Path: path, Op: "save", Err: err}
	}

	m.dirty = false
	return nil
}

// Load replaces the memory contents from a checkpoint file. A missing file
// leaves the memory empty without error; a corrupt file returns a
// PersistenceError and leaves the in-memory state unchanged.
func (m *PatternMemory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &PersistenceError{Path: path, Op: "load", Err: err}
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return &PersistenceError{Path: path, Op: "load", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.patterns = make(map[string]*Pattern, len(snap.Patterns))
	m.order = list.New()
	m.index = make(map[string]*list.Element, len(snap.Patterns))

	for _, hash := range snap.AccessOrder {
		p, ok := snap.Patterns[hash]
		if !ok {
			continue
		}
		m.patterns[hash] = p
		m.index[hash] = m.order.PushBack(hash)
	}
	// Patterns missing from the recorded order still load, as oldest.
	for hash, p := range snap.Patterns {
		if _, ok := m.patterns[hash]; !ok {
			m.patterns[hash] = p
			m.index[hash] = m.order.PushFront(hash)
		}
	}

	m.dirty = false
	return nil
}
