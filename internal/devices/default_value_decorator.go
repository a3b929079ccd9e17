package devices

import (
	"context"
	"time"
)

// DefaultValueDecorator fills empty descriptor fields.
type DefaultValueDecorator struct {
	now func() time.Time
}

// NewDefaultValueDecorator creates a new default value decorator.
func NewDefaultValueDecorator() *DefaultValueDecorator {
	return &DefaultValueDecorator{now: time.Now}
}

// Decorate sets default values for empty fields.
func (d *DefaultValueDecorator) Decorate(ctx context.Context, descriptors []*Descriptor) ([]*Descriptor, error) {
	now := d.now()

	decorated := make([]*Descriptor, len(descriptors))
	for i, desc := range descriptors {
		decorated[i] = desc.Clone()

		if decorated[i].DisplayName == "" {
			decorated[i].DisplayName = string(desc.Kind) + " " + desc.ID
		}

		if decorated[i].QualityTier == "" {
			decorated[i].QualityTier = QualityStandard
		}

		if decorated[i].Specs == nil {
			decorated[i].Specs = map[string]string{}
		}

		if decorated[i].DiscoveredAt.IsZero() {
			decorated[i].DiscoveredAt = now
		}
	}

	return decorated, nil
}
