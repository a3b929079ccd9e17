package devices

import (
	"cmp"
	"slices"
	"strings"
)

// DefaultMerger keeps the first descriptor seen for each id. Input arrives in
// strategy priority order, so the highest-priority source wins.
type DefaultMerger struct{}

// NewDefaultMerger creates a new default merger.
func NewDefaultMerger() *DefaultMerger {
	return &DefaultMerger{}
}

// Merge dedupes by id and orders the result for presentation: recommended devices
// first, then hardware before simulations, then by display name.
func (m *DefaultMerger) Merge(descriptors []*Descriptor) []*Descriptor {
	seen := make(map[string]struct{}, len(descriptors))
	out := make([]*Descriptor, 0, len(descriptors))

	for _, d := range descriptors {
		if d == nil || d.ID == "" {
			continue
		}

		if _, dup := seen[d.ID]; dup {
			continue
		}

		seen[d.ID] = struct{}{}

		out = append(out, d.Clone())
	}

	slices.SortStableFunc(out, compareDescriptors)

	return out
}

func compareDescriptors(a, b *Descriptor) int {
	if a.Recommended != b.Recommended {
		if a.Recommended {
			return -1
		}

		return 1
	}

	if c := cmp.Compare(rank(a.Kind), rank(b.Kind)); c != 0 {
		return c
	}

	return strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
}

func rank(kind TransportKind) int {
	if r, ok := kindOrder[kind]; ok {
		return r
	}

	return len(kindOrder)
}
