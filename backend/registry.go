package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compute/gpucore"
)

// registry holds registered providers.
var (
	registryMu sync.RWMutex
	providers  = make(map[string]Provider)
	// Priority order for default selection (first that opens wins).
	// GPU first, the host interpreter is the fallback.
	backendPriority = []string{BackendWGPU, BackendCPU}
)

// Register registers a provider under the given name.
// This is typically called from init() functions in backend packages.
// If a provider with the same name is already registered, it is replaced.
func Register(name string, p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = p
}

// Unregister removes a provider from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(providers, name)
}

// Available returns the registered provider names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a provider with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := providers[name]
	return ok
}

// Get returns the provider registered under name, or nil.
func Get(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return providers[name]
}

// Open opens a device from the named provider.
func Open(name string, cfg Config) (gpucore.Device, error) {
	p := Get(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Available())
	}
	dev, err := p.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	return dev, nil
}

// OpenDefault opens a device from the best provider that succeeds and
// returns its name. Providers are tried in priority order (wgpu, then cpu),
// then any other registered provider in name order.
func OpenDefault(cfg Config) (gpucore.Device, string, error) {
	order := selectionOrder()
	if len(order) == 0 {
		return nil, "", ErrBackendNotAvailable
	}

	log := cfg.Log()
	var errs []error
	for _, name := range order {
		dev, err := Open(name, cfg)
		if err == nil {
			return dev, name, nil
		}
		log.Warn("backend: provider failed, trying next", "backend", name, "err", err)
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

// selectionOrder returns registered names, prioritized ones first.
func selectionOrder() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	order := make([]string, 0, len(providers))
	for _, name := range backendPriority {
		if _, ok := providers[name]; ok {
			order = append(order, name)
		}
	}
	rest := make([]string, 0, len(providers))
	for name := range providers {
		if !slices.Contains(backendPriority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(order, rest...)
}

// DeviceEntry is one adapter offered by a registered provider.
type DeviceEntry struct {
	Backend string
	Adapter gpucontext.AdapterInfo
}

// Devices lists the adapters of every registered provider, in selection
// order.
func Devices() []DeviceEntry {
	var out []DeviceEntry
	for _, name := range selectionOrder() {
		p := Get(name)
		if p == nil {
			continue
		}
		for _, a := range p.Adapters() {
			out = append(out, DeviceEntry{Backend: name, Adapter: a})
		}
	}
	return out
}
