package strategy

import (
	"fmt"
	"sync"
)

// StrategyFactory creates a strategy instance
type StrategyFactory func() Strategy

var (
	registry     = make(map[string]StrategyFactory)
	order        []string
	registryLock sync.RWMutex
)

// Register adds a strategy under name. Re-registering keeps the original
// position in List order.
func Register(name string, factory StrategyFactory) {
	registryLock.Lock()
	defer registryLock.Unlock()

	if _, exists := registry[name]; !exists {
		order = append(order, name)
	}
	registry[name] = factory
}

// Get returns a new instance of the named strategy
func Get(name string) (Strategy, error) {
	registryLock.RLock()
	factory, ok := registry[name]
	registryLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s (available: %v)", name, List())
	}

	return factory(), nil
}

// MustGet returns the named strategy or panics
func MustGet(name string) Strategy {
	s, err := Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

// List returns registered names in registration order
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, len(order))
	copy(names, order)
	return names
}

// All returns one instance of every registered strategy
func All() []Strategy {
	names := List()
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		if s, err := Get(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Resolve maps names to strategies; an empty list means all of them
func Resolve(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return All(), nil
	}

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, err := Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StrategyInfo describes a registered strategy
type StrategyInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AllInfo returns info for every registered strategy
func AllInfo() []StrategyInfo {
	strategies := All()
	infos := make([]StrategyInfo, 0, len(strategies))
	for _, s := range strategies {
		infos = append(infos, StrategyInfo{
			ID:          s.ID(),
			Name:        s.Name(),
			Description: s.Description(),
		})
	}
	return infos
}

func init() {
	Register(MovingAverageID, func() Strategy { return NewMovingAverageStrategy() })
	Register(MomentumID, func() Strategy { return NewMomentumStrategy() })
	Register(MeanReversionID, func() Strategy { return NewMeanReversionStrategy() })
}
