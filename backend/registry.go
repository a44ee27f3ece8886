package backend

import (
	"fmt"
	"sort"
	"sync"
)

// OpenFunc creates a device from its init arguments.
type OpenFunc func(args []string) (Device, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register makes a device available by name. It is meant to be called from
// the init function of a device package and panics on duplicate names.
func Register(name string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("backend: device %q registered twice", name))
	}
	registry[name] = open
}

// Open a registered device.
func Open(name string, args []string) (Device, error) {
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return open(args)
}

// Devices returns the sorted names of all registered devices.
func Devices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
