package config

import "sync"

// Holder provides concurrent access to a Config that can be reloaded at
// runtime, typically on SIGHUP. Reload re-runs the full load hierarchy
// against the original YAML path and keeps the previous config when the
// result fails validation.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded config and remembers the YAML path it
// came from so Reload can repeat the load.
func NewHolder(cfg *Config, yamlPath string) *Holder {
	return &Holder{cfg: cfg, path: yamlPath}
}

// Get returns the current config. Callers must treat it as read-only.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload loads a fresh config from the holder's YAML path. The previous
// config stays active if loading or validation fails.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
