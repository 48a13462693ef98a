package store

import "strings"

type namespaced struct {
	inner  Store
	prefix string
}

// Namespace scopes every key of st under ns, so several players can share
// one backing store.
func Namespace(st Store, ns string) Store {
	return &namespaced{inner: st, prefix: ns + ":"}
}

func (n *namespaced) Get(key string) ([]byte, bool, error) {
	return n.inner.Get(n.prefix + key)
}

func (n *namespaced) Put(key string, value []byte) error {
	return n.inner.Put(n.prefix+key, value)
}

func (n *namespaced) PutMany(values map[string][]byte) error {
	scoped := make(map[string][]byte, len(values))
	for key, value := range values {
		scoped[n.prefix+key] = value
	}
	return n.inner.PutMany(scoped)
}

func (n *namespaced) Delete(key string) error {
	return n.inner.Delete(n.prefix + key)
}

func (n *namespaced) Keys(prefix string) ([]string, error) {
	keys, err := n.inner.Keys(n.prefix + prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, n.prefix))
	}
	return out, nil
}
