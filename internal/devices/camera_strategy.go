package devices

import (
	"context"
	"strconv"
	"strings"

	"github.com/bavix/scanbridge/internal/host"
)

// CameraStrategy lists capture devices. Rear-facing cameras are recommended.
type CameraStrategy struct {
	host host.CaptureHost
}

// NewCameraStrategy creates a camera discovery strategy. A nil host disables it.
func NewCameraStrategy(h host.CaptureHost) *CameraStrategy {
	return &CameraStrategy{host: h}
}

func (s *CameraStrategy) Name() string                     { return SourceCamera }
func (s *CameraStrategy) Priority() int                    { return PriorityCamera }
func (s *CameraStrategy) IsAvailable(_ context.Context) bool { return s.host != nil }

func (s *CameraStrategy) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	infos, err := s.host.ListCaptureDevices(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Descriptor, 0, len(infos))
	for i, info := range infos {
		rear := isRearFacing(info)

		quality := QualityGood
		if rear {
			quality = QualityExcellent
		}

		name := info.Label
		if name == "" {
			name = "Camera " + strconv.Itoa(i+1)
		}

		out = append(out, &Descriptor{
			ID:          StableID(KindCamera, info.ID),
			Kind:        KindCamera,
			DisplayName: name,
			QualityTier: quality,
			Recommended: rear,
			Source:      SourceCamera,
			Specs: map[string]string{
				SpecCaptureID: info.ID,
				SpecFacing:    info.Facing,
			},
		})
	}

	return out, nil
}

func isRearFacing(info host.CaptureDeviceInfo) bool {
	if info.Facing == "environment" {
		return true
	}

	label := strings.ToLower(info.Label)

	return strings.Contains(label, "back") || strings.Contains(label, "rear") || strings.Contains(label, "environment")
}
