package infrastructure

import (
	"fmt"
	"sort"
	"sync"

	"chatdesk/internal/entities"
	"chatdesk/internal/interfaces"
)

// AdapterRegistry holds one adapter per channel type. New providers are
// supported by registering another adapter.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[entities.ChannelType]interfaces.ChannelAdapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[entities.ChannelType]interfaces.ChannelAdapter)}
}

func (r *AdapterRegistry) Register(adapter interfaces.ChannelAdapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[adapter.Type()]; exists {
		return fmt.Errorf("channel adapter already registered: %s", adapter.Type())
	}
	r.adapters[adapter.Type()] = adapter
	return nil
}

func (r *AdapterRegistry) MustRegister(adapter interfaces.ChannelAdapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

func (r *AdapterRegistry) Get(channel entities.ChannelType) (interfaces.ChannelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[channel]
	return a, ok
}

func (r *AdapterRegistry) Types() []entities.ChannelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]entities.ChannelType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
