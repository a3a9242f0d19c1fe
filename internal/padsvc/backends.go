package padsvc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neuroplastio/neio-pad/internal/padsvc/sdl"
	"github.com/neuroplastio/neio-pad/internal/padsvc/virtual"
	"github.com/neuroplastio/neio-pad/padapi"
	"github.com/neuroplastio/neio-pad/pkg/registry"
	"go.uber.org/zap"
)

// BackendProvider is handed to backend constructors.
type BackendProvider struct {
	Log *zap.Logger
}

type BackendRegistry = registry.Registry[padapi.Backend, *BackendProvider]

// NewBackendRegistry returns a registry with every backend available on this platform.
func NewBackendRegistry(log *zap.Logger) *BackendRegistry {
	reg := registry.NewRegistry[padapi.Backend, *BackendProvider](&BackendProvider{Log: log})
	reg.Register("virtual", func(config json.RawMessage, p *BackendProvider) (padapi.Backend, error) {
		cfg, err := virtual.ParseConfig(config)
		if err != nil {
			return nil, err
		}
		return virtual.NewBackend(p.Log.Named("virtual"), cfg), nil
	})
	reg.Register("sdl", func(config json.RawMessage, p *BackendProvider) (padapi.Backend, error) {
		return sdl.NewBackend(p.Log.Named("sdl")), nil
	})
	registerPlatformBackends(reg)
	return reg
}

// NewBackend builds the named backend from its raw JSON config.
func NewBackend(reg *BackendRegistry, name string, config json.RawMessage) (padapi.Backend, error) {
	backend, err := reg.New(name, config)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s (available: %v)", padapi.ErrUnknownBackend, name, reg.Names())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	return backend, nil
}
