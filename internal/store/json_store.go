package store

import (
	"encoding/json"
	"errors"
	"log"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
)

// JSONStore keeps every key in a single JSON document on a hackpadfs
// filesystem and rewrites it through a temp file on each change.
type JSONStore struct {
	fs       hackpadfs.FS
	filePath string
	mu       sync.RWMutex
	state    map[string]json.RawMessage
}

// NewJSONStore opens a JSON store backed by the host filesystem.
func NewJSONStore(filePath string) (*JSONStore, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, err
	}
	dir := strings.TrimPrefix(filepath.ToSlash(filepath.Dir(abs)), "/")
	if dir == "" {
		dir = "."
	}
	root := osfs.NewFS()
	if err := hackpadfs.MkdirAll(root, dir, 0o755); err != nil {
		return nil, err
	}
	fsys, err := root.Sub(dir)
	if err != nil {
		return nil, err
	}
	return NewJSONStoreFS(fsys, filepath.Base(abs))
}

// NewJSONStoreFS opens a JSON store at name inside fsys.
func NewJSONStoreFS(fsys hackpadfs.FS, name string) (*JSONStore, error) {
	s := &JSONStore{
		fs:       fsys,
		filePath: name,
		state:    make(map[string]json.RawMessage),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.state[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (s *JSONStore) Put(key string, value []byte) error {
	return s.PutMany(map[string][]byte{key: value})
}

func (s *JSONStore) PutMany(values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		if old, ok := s.state[key]; ok {
			previous[key] = old
		}
		s.state[key] = append(json.RawMessage(nil), value...)
	}
	if err := s.persistLocked(); err != nil {
		for key := range values {
			if old, ok := previous[key]; ok {
				s.state[key] = old
			} else {
				delete(s.state, key)
			}
		}
		return err
	}
	return nil
}

func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.state[key]
	if !ok {
		return nil
	}
	delete(s.state, key)
	if err := s.persistLocked(); err != nil {
		s.state[key] = old
		return err
	}
	return nil
}

func (s *JSONStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key := range s.state {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := hackpadfs.ReadFile(s.fs, s.filePath)
	if err != nil {
		if errors.Is(err, hackpadfs.ErrNotExist) {
			return nil
		}
		return err
	}
	var state map[string]json.RawMessage
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("store file corrupt, starting empty: path=%s err=%v", s.filePath, err)
		return nil
	}
	if state != nil {
		s.state = state
	}
	return nil
}

func (s *JSONStore) persistLocked() error {
	if dir := path.Dir(s.filePath); dir != "." {
		if err := hackpadfs.MkdirAll(s.fs, dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := hackpadfs.WriteFullFile(s.fs, tmpPath, data, 0o644); err != nil {
		return err
	}
	return hackpadfs.Rename(s.fs, tmpPath, s.filePath)
}
