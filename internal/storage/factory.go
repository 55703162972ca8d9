// factory.go implements the backend registry and factory, mapping backend type strings
// (local, drive, s3, gcs, azure) to constructor functions and dispatching New calls.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zahid0/audio-app/internal/config"
)

// FactoryFunc builds a backend from the application configuration.
type FactoryFunc func(*config.Config) (Gateway, error)

var factories = make(map[string]FactoryFunc)

// Register registers a backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Registered returns the sorted names of every registered backend.
func Registered() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the configured backend, wrapped with metrics instrumentation.
func New(cfg *config.Config) (Gateway, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %q (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(Registered(), ", "))
	}

	gw, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	return Instrument(gw), nil
}
