// Package registry maps component names to constructors that take raw JSON config.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("component not found")

type Component interface {
	any
}

type Provider interface {
	any
}

type ComponentCreator[C Component, P Provider] func(config json.RawMessage, provider P) (C, error)

type Registry[C Component, P Provider] struct {
	mu         sync.RWMutex
	components map[string]ComponentCreator[C, P]
	provider   P
}

func NewRegistry[C Component, P Provider](provider P) *Registry[C, P] {
	return &Registry[C, P]{
		provider:   provider,
		components: make(map[string]ComponentCreator[C, P]),
	}
}

// Register adds a creator. Registering the same id twice panics.
func (r *Registry[C, P]) Register(id string, creator ComponentCreator[C, P]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[id]; ok {
		panic(fmt.Sprintf("component %q already registered", id))
	}
	r.components[id] = creator
}

func (r *Registry[C, P]) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.components[id]
	return ok
}

// Names returns the registered ids in sorted order.
func (r *Registry[C, P]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for id := range r.components {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

func (r *Registry[C, P]) New(id string, config json.RawMessage) (C, error) {
	r.mu.RLock()
	creator, ok := r.components[id]
	r.mu.RUnlock()
	if !ok {
		var component C
		return component, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return creator(config, r.provider)
}
