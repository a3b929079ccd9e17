package decode

import (
	"image"
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/transport"
)

// Detector finds at most one code in a frame.
type Detector interface {
	Detect(img image.Image) (string, bool)
}

// CameraPipeline runs the detector on every Nth frame.
type CameraPipeline struct {
	detector Detector
	every    int
	seen     int
}

// NewCameraPipeline creates a frame sampling pipeline.
func NewCameraPipeline(detector Detector, everyN int) *CameraPipeline {
	if everyN <= 0 {
		everyN = DefaultSampleEveryNFrames
	}

	return &CameraPipeline{detector: detector, every: everyN}
}

func (p *CameraPipeline) Decode(sig transport.RawSignal) ([]CandidateCode, error) {
	if sig.Frame == nil || sig.Frame.Image == nil {
		return nil, nil
	}

	p.seen++
	if p.seen%p.every != 0 {
		return nil, nil
	}

	text, ok := p.detector.Detect(sig.Frame.Image)
	if !ok || text == "" {
		return nil, nil
	}

	at := sig.Frame.At
	if at.IsZero() {
		at = sig.At
	}

	return []CandidateCode{candidate(text, devices.KindCamera, at)}, nil
}

func (p *CameraPipeline) Flush(time.Time) []CandidateCode { return nil }

func (p *CameraPipeline) Reset() { p.seen = 0 }
