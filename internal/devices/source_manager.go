package devices

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// SourceManager runs discovery passes over a set of strategies.
type SourceManager struct {
	mu         sync.RWMutex
	strategies []DiscoveryStrategy
	merger     Merger
	decorators []Decorator
}

// NewSourceManager creates a source manager with the default merger.
func NewSourceManager() *SourceManager {
	return &SourceManager{
		strategies: make([]DiscoveryStrategy, 0),
		decorators: make([]Decorator, 0),
		merger:     NewDefaultMerger(),
	}
}

// AddStrategy adds a discovery strategy.
func (sm *SourceManager) AddStrategy(strategy DiscoveryStrategy) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.strategies = append(sm.strategies, strategy)
	slices.SortStableFunc(sm.strategies, func(a, b DiscoveryStrategy) int {
		return cmp.Compare(b.Priority(), a.Priority())
	})
}

// AddDecorator adds a descriptor decorator.
func (sm *SourceManager) AddDecorator(decorator Decorator) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.decorators = append(sm.decorators, decorator)
}

// SetMerger sets the descriptor merger.
func (sm *SourceManager) SetMerger(merger Merger) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.merger = merger
}

// Strategies returns the registered strategy names in priority order.
func (sm *SourceManager) Strategies() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := make([]string, 0, len(sm.strategies))
	for _, s := range sm.strategies {
		names = append(names, s.Name())
	}

	return names
}

// DiscoverDevices runs every available strategy concurrently and returns a freshly
// built descriptor set. A failing strategy is logged and skipped.
func (sm *SourceManager) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	sm.mu.RLock()
	strategies := slices.Clone(sm.strategies)
	decorators := slices.Clone(sm.decorators)
	merger := sm.merger
	sm.mu.RUnlock()

	if merger == nil {
		return nil, customerrors.ErrMergerNotSet
	}

	log := zerolog.Ctx(ctx)
	results := make([][]*Descriptor, len(strategies))

	g, gctx := errgroup.WithContext(ctx)

	for i, strategy := range strategies {
		g.Go(func() error {
			if !strategy.IsAvailable(gctx) {
				log.Debug().Str("strategy", strategy.Name()).Msg("discovery strategy unavailable")

				return nil
			}

			found, err := strategy.DiscoverDevices(gctx)
			if err != nil {
				log.Warn().Err(err).Str("strategy", strategy.Name()).Msg("discovery strategy failed")

				return nil
			}

			results[i] = found

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*Descriptor
	for _, found := range results {
		all = append(all, found...)
	}

	descriptors := merger.Merge(all)

	for _, decorator := range decorators {
		decorated, err := decorator.Decorate(ctx, descriptors)
		if err != nil {
			log.Warn().Err(err).Msg("device decorator failed")

			continue
		}

		descriptors = decorated
	}

	log.Debug().Int("devices", len(descriptors)).Int("strategies", len(strategies)).Msg("discovery pass complete")

	return descriptors, nil
}
