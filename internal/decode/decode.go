// Package decode turns raw transport signals into candidate code strings.
package decode

import (
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/transport"
)

// Option defaults.
const (
	DefaultSampleEveryNFrames = 30
	DefaultWedgeTimeout       = time.Second
	DefaultMinBarcodeLength   = 4
	DefaultMaxBarcodeLength   = 100
	DefaultHIDIdleFlush       = 150 * time.Millisecond
)

// CandidateCode is an unvalidated string read from a device.
type CandidateCode struct {
	Text       string                `json:"text"`
	Source     devices.TransportKind `json:"source_transport"`
	CapturedAt time.Time             `json:"captured_at"`
}

// Pipeline converts the signals of one open handle. Pipelines are not safe for
// concurrent use; the connection pump is their only caller.
type Pipeline interface {
	// Decode consumes one signal and returns the candidates it completed.
	Decode(sig transport.RawSignal) ([]CandidateCode, error)
	// Flush completes a pending burst whose idle window elapsed at now.
	Flush(now time.Time) []CandidateCode
	// Reset drops any buffered input.
	Reset()
}

// Options tunes the pipelines.
type Options struct {
	SampleEveryNFrames int
	WedgeTimeout       time.Duration
	MinBarcodeLength   int
	MaxBarcodeLength   int
	HIDIdleFlush       time.Duration
	Detector           Detector
}

func (o Options) withDefaults() Options {
	if o.SampleEveryNFrames <= 0 {
		o.SampleEveryNFrames = DefaultSampleEveryNFrames
	}

	if o.WedgeTimeout <= 0 {
		o.WedgeTimeout = DefaultWedgeTimeout
	}

	if o.MinBarcodeLength <= 0 {
		o.MinBarcodeLength = DefaultMinBarcodeLength
	}

	if o.MaxBarcodeLength <= 0 {
		o.MaxBarcodeLength = DefaultMaxBarcodeLength
	}

	if o.HIDIdleFlush <= 0 {
		o.HIDIdleFlush = DefaultHIDIdleFlush
	}

	if o.Detector == nil {
		o.Detector = NewHeuristicDetector(nil)
	}

	return o
}

// New returns the pipeline for kind.
func New(kind devices.TransportKind, opts Options) (Pipeline, error) {
	opts = opts.withDefaults()

	switch kind {
	case devices.KindCamera:
		return NewCameraPipeline(opts.Detector, opts.SampleEveryNFrames), nil
	case devices.KindUSB:
		return NewHIDPipeline(opts.HIDIdleFlush), nil
	case devices.KindSerial:
		return NewSerialPipeline(), nil
	case devices.KindBluetooth:
		return textPipeline{kind: kind, decode: decodeBLE}, nil
	case devices.KindNetwork:
		return textPipeline{kind: kind, decode: decodeNetwork}, nil
	case devices.KindKeyboardWedge:
		return NewWedgePipeline(opts.WedgeTimeout, opts.MinBarcodeLength, opts.MaxBarcodeLength), nil
	case devices.KindDemo:
		return textPipeline{kind: kind, decode: decodeSimulated}, nil
	default:
		return nil, customerrors.ErrUnsupported
	}
}

func candidate(text string, kind devices.TransportKind, at time.Time) CandidateCode {
	if at.IsZero() {
		at = time.Now()
	}

	return CandidateCode{Text: text, Source: kind, CapturedAt: at}
}

// textPipeline is the stateless pipeline of transports whose signals are whole messages.
type textPipeline struct {
	kind   devices.TransportKind
	decode func(transport.RawSignal) (string, bool, error)
}

func (p textPipeline) Decode(sig transport.RawSignal) ([]CandidateCode, error) {
	text, ok, err := p.decode(sig)
	if err != nil || !ok {
		return nil, err
	}

	return []CandidateCode{candidate(text, p.kind, sig.At)}, nil
}

func (textPipeline) Flush(time.Time) []CandidateCode { return nil }
func (textPipeline) Reset()                          {}

func decodeSimulated(sig transport.RawSignal) (string, bool, error) {
	if sig.Err != nil {
		return "", false, sig.Err
	}

	return string(sig.Data), len(sig.Data) > 0, nil
}
