// Package secrets keeps operator-supplied secrets (the JWT signing secret)
// in memory, out of config files, and supports hot rotation: SIGHUP reloads
// the vault in place so a new signing secret takes effect without a restart.
package secrets

import (
	"fmt"
	"sort"
	"sync"
)

// Loader fetches the current secret values from their source.
type Loader func() (map[string]string, error)

// Vault holds secret values behind a read lock so request paths can read the
// signing secret on every token operation while a reload swaps values
// underneath.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once. A failing initial load
// is fatal to the caller: serving with no signing secret is never an option.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not set.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Bytes returns the secret for key as raw bytes, the form signing keys are
// consumed in. Returns nil if the key is not set.
func (v *Vault) Bytes(key string) []byte {
	if s := v.Get(key); s != "" {
		return []byte(s)
	}
	return nil
}

// Reload calls the loader and swaps in the new values atomically, returning
// the names of the keys whose values were added, removed, or rotated. The
// names let the SIGHUP handler log a rotation without the values ever
// reaching the log stream. A failing loader preserves the current values: a
// broken rotation must not take a working secret down with it.
func (v *Vault) Reload() ([]string, error) {
	fresh, err := v.loader()
	if err != nil {
		return nil, fmt.Errorf("reload secrets: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var changed []string
	for key, val := range fresh {
		if v.values[key] != val {
			changed = append(changed, key)
		}
	}
	for key := range v.values {
		if _, ok := fresh[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)

	v.values = fresh
	return changed, nil
}
