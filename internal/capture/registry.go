package capture

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/histocam/internal/config"
)

// Options is the backend-independent part of the source configuration
type Options struct {
	Device      string
	Width       int
	Height      int
	Framerate   int
	ReadTimeout time.Duration
}

const defaultReadTimeout = 500 * time.Millisecond

// OptionsFromConfig converts the config section into backend options
func OptionsFromConfig(cfg config.SourceConfig) Options {
	return Options{
		Device:      cfg.Device,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Framerate:   cfg.Framerate,
		ReadTimeout: time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	return o
}

// Factory creates an unopened source
type Factory func(opts Options) (FrameSource, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Backends compiled in with
// build tags register themselves from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("capture: backend %q registered twice", name))
	}
	registry[name] = factory
}

// Backends lists the registered backend names
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates an unopened source for the configured backend
func New(cfg config.SourceConfig) (FrameSource, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}
	return factory(OptionsFromConfig(cfg))
}
