package devices

import (
	"context"
	"strings"
)

// Built-in device ids.
const (
	IDKeyboardWedge = "keyboard-wedge"
	IDDemo          = "demo"
	IDUSBSimulator  = "usb-simulator"
	IDAIScanner     = "ai-scanner"
)

// BuiltinStrategy lists the devices that need no hardware enumeration.
type BuiltinStrategy struct {
	wedge      bool
	demo       bool
	candidates []string
}

// NewBuiltinStrategy creates the built-in strategy. Non-empty candidates
// replace the reading set of the demo device.
func NewBuiltinStrategy(wedge, demo bool, candidates ...string) *BuiltinStrategy {
	return &BuiltinStrategy{wedge: wedge, demo: demo, candidates: candidates}
}

func (s *BuiltinStrategy) Name() string                     { return SourceBuiltin }
func (s *BuiltinStrategy) Priority() int                    { return PriorityBuiltin }
func (s *BuiltinStrategy) IsAvailable(_ context.Context) bool { return true }

func (s *BuiltinStrategy) DiscoverDevices(_ context.Context) ([]*Descriptor, error) {
	var out []*Descriptor

	if s.wedge {
		out = append(out, &Descriptor{
			ID:          IDKeyboardWedge,
			Kind:        KindKeyboardWedge,
			DisplayName: "Keyboard wedge scanner",
			QualityTier: QualityStandard,
			Source:      SourceBuiltin,
		})
	}

	if s.demo {
		demo := &Descriptor{
			ID:          IDDemo,
			Kind:        KindDemo,
			DisplayName: "Demo scanner (retail samples)",
			QualityTier: QualityBasic,
			Source:      SourceBuiltin,
		}

		if len(s.candidates) > 0 {
			demo.Specs = map[string]string{SpecCandidates: strings.Join(s.candidates, ",")}
		}

		out = append(out,
			demo,
			&Descriptor{
				ID:          IDUSBSimulator,
				Kind:        KindDemo,
				DisplayName: "USB scanner simulator",
				QualityTier: QualityBasic,
				Source:      SourceBuiltin,
			},
		)
	}

	// Listed so callers can see it; the transport layer has no driver for it.
	out = append(out, &Descriptor{
		ID:          IDAIScanner,
		Kind:        KindAI,
		DisplayName: "AI product recognition",
		QualityTier: QualityBasic,
		Source:      SourceBuiltin,
	})

	return out, nil
}
