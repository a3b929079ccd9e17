package devices

import (
	"context"
	"strings"
)

// NetworkScanner is a statically configured network scanner.
type NetworkScanner struct {
	Name    string
	Address string
}

// ServiceBrowser finds network scanners on the local link.
type ServiceBrowser interface {
	Browse(ctx context.Context) ([]ServiceEntry, error)
}

// NetworkStrategy lists configured network scanners plus any found by a browser.
type NetworkStrategy struct {
	scanners []NetworkScanner
	browser  ServiceBrowser
}

// NewNetworkStrategy creates a network discovery strategy. browser may be nil.
func NewNetworkStrategy(scanners []NetworkScanner, browser ServiceBrowser) *NetworkStrategy {
	return &NetworkStrategy{scanners: scanners, browser: browser}
}

func (s *NetworkStrategy) Name() string  { return SourceNetwork }
func (s *NetworkStrategy) Priority() int { return PriorityNetwork }

func (s *NetworkStrategy) IsAvailable(_ context.Context) bool {
	return len(s.scanners) > 0 || s.browser != nil
}

func (s *NetworkStrategy) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	out := make([]*Descriptor, 0, len(s.scanners))

	for _, sc := range s.scanners {
		addr := strings.TrimSpace(sc.Address)
		if addr == "" {
			continue
		}

		out = append(out, networkDescriptor(sc.Name, addr, SourceNetwork))
	}

	if s.browser == nil {
		return out, nil
	}

	entries, err := s.browser.Browse(ctx)
	if err != nil && len(entries) == 0 {
		if len(out) > 0 {
			return out, nil
		}

		return nil, err
	}

	for _, e := range entries {
		addr := e.Address()
		if addr == "" {
			continue
		}

		out = append(out, networkDescriptor(e.Instance, addr, SourceMDNS))
	}

	return out, nil
}

func networkDescriptor(name, addr, source string) *Descriptor {
	if name == "" {
		name = addr
	}

	return &Descriptor{
		ID:          StableID(KindNetwork, addr),
		Kind:        KindNetwork,
		DisplayName: "Network scanner " + name,
		QualityTier: QualityProfessional,
		Source:      source,
		Specs:       map[string]string{SpecAddress: addr},
	}
}
