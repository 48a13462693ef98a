package store

import (
	"encoding/json"
	"log"
)

// Store is a keyed blob store holding the persisted client state of a
// player. Values are JSON documents.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	// PutMany writes every value or none of them.
	PutMany(values map[string][]byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// LoadJSON decodes the value under key. A missing key, a read failure or an
// unparseable value all yield the zero value and false; corruption is logged
// and never returned.
func LoadJSON[T any](st Store, key string) (T, bool) {
	var zero T
	raw, ok, err := st.Get(key)
	if err != nil {
		log.Printf("store load failed: key=%s err=%v", key, err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Printf("store value corrupt, using default: key=%s err=%v", key, err)
		return zero, false
	}
	return v, true
}

func SaveJSON(st Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.Put(key, raw)
}

// SaveJSONMany encodes every value before writing them in one PutMany.
func SaveJSONMany(st Store, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		encoded[key] = raw
	}
	return st.PutMany(encoded)
}
