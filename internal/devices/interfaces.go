package devices

import (
	"context"
)

// DiscoveryStrategy enumerates the devices reachable through one host capability.
type DiscoveryStrategy interface {
	// Name returns the strategy name.
	Name() string

	// Priority returns the strategy priority (higher = more important).
	Priority() int

	// DiscoverDevices runs one discovery pass.
	DiscoverDevices(ctx context.Context) ([]*Descriptor, error)

	// IsAvailable checks if the backing capability exists on this host.
	IsAvailable(ctx context.Context) bool
}

// Merger merges descriptors reported by several strategies.
type Merger interface {
	Merge(descriptors []*Descriptor) []*Descriptor
}

// Decorator adds information to descriptors and returns decorated copies
// without mutating its input.
type Decorator interface {
	Decorate(ctx context.Context, descriptors []*Descriptor) ([]*Descriptor, error)
}
