package store

import (
	"errors"
	"strings"

	"github.com/hack-pad/hackpadfs/mem"
)

const (
	EngineJSON   = "json"
	EngineSQLite = "sqlite"
	EngineMemory = "memory"
)

func NewByEngine(engine string, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineSQLite:
		return NewSQLiteStore(path)
	case EngineJSON:
		return NewJSONStore(path)
	case EngineMemory:
		return NewMemoryStore()
	default:
		return nil, errors.New("unsupported store engine: " + engine)
	}
}

// NewMemoryStore returns a JSON store on an in-memory filesystem.
func NewMemoryStore() (*JSONStore, error) {
	fsys, err := mem.NewFS()
	if err != nil {
		return nil, err
	}
	return NewJSONStoreFS(fsys, "state.json")
}
