package core

import (
	"fmt"
	"sync"
)

type ProviderStrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[ProviderKind]RefreshStrategy
}

func NewStrategyRegistry(strategies ...RefreshStrategy) (*ProviderStrategyRegistry, error) {
	registry := &ProviderStrategyRegistry{strategies: make(map[ProviderKind]RefreshStrategy)}
	for _, strategy := range strategies {
		if err := registry.Register(strategy); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *ProviderStrategyRegistry) Register(strategy RefreshStrategy) error {
	if strategy == nil {
		return fmt.Errorf("core: refresh strategy is nil")
	}
	kind, err := ParseProviderKind(string(strategy.Provider()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.strategies == nil {
		r.strategies = make(map[ProviderKind]RefreshStrategy)
	}
	if _, exists := r.strategies[kind]; exists {
		return fmt.Errorf("core: refresh strategy already registered: %s", kind)
	}
	r.strategies[kind] = strategy
	return nil
}

func (r *ProviderStrategyRegistry) Get(provider ProviderKind) (RefreshStrategy, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	strategy, ok := r.strategies[provider]
	r.mu.RUnlock()
	return strategy, ok
}

// List returns the registered strategies in AllProviderKinds order.
func (r *ProviderStrategyRegistry) List() []RefreshStrategy {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RefreshStrategy, 0, len(r.strategies))
	for _, kind := range AllProviderKinds() {
		if strategy, ok := r.strategies[kind]; ok {
			out = append(out, strategy)
		}
	}
	return out
}

var _ StrategyRegistry = (*ProviderStrategyRegistry)(nil)
