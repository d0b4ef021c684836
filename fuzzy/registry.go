// Package fuzzy holds similarity digests. They are stored as an ordinary
// property and compared for equality like any other signature.
package fuzzy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Hasher defines a fuzzy hashing implementation.
type Hasher interface {
	Name() string
	// HashFile returns "" with a nil error when the content cannot carry a
	// digest (too short, too uniform).
	HashFile(path string) (string, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Hasher{}
)

// Register adds a fuzzy hasher to the registry.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	registryMu.Lock()
	registry[strings.ToLower(hasher.Name())] = hasher
	registryMu.Unlock()
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	hasher, ok := registry[strings.ToLower(name)]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	registryMu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}

// HashFile digests path with the named hasher.
func HashFile(name, path string) (string, error) {
	h, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("fuzzy hasher %q not registered", name)
	}
	return h.HashFile(path)
}
