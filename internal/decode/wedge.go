package decode

import (
	"time"
	"unicode/utf8"

	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/host"
	"github.com/bavix/scanbridge/internal/transport"
)

// WedgePipeline frames keystroke bursts. A gap longer than the timeout means the
// buffered keys were human typing and are dropped.
type WedgePipeline struct {
	timeout time.Duration
	min     int
	max     int

	buf  []rune
	last time.Time
}

// NewWedgePipeline creates a keyboard wedge pipeline.
func NewWedgePipeline(timeout time.Duration, minLen, maxLen int) *WedgePipeline {
	return &WedgePipeline{timeout: timeout, min: minLen, max: maxLen}
}

func (p *WedgePipeline) Decode(sig transport.RawSignal) ([]CandidateCode, error) {
	ks := sig.Key
	if ks.At.IsZero() {
		ks.At = sig.At
	}

	if !p.last.IsZero() && ks.At.Sub(p.last) > p.timeout {
		p.buf = p.buf[:0]
	}

	p.last = ks.At

	if ks.Key == host.Enter {
		if len(p.buf) < p.min {
			return nil, nil
		}

		text := string(p.buf)
		p.buf = p.buf[:0]

		return []CandidateCode{candidate(text, devices.KindKeyboardWedge, ks.At)}, nil
	}

	if utf8.RuneCountInString(ks.Key) != 1 {
		return nil, nil
	}

	r, _ := utf8.DecodeRuneInString(ks.Key)
	p.buf = append(p.buf, r)

	// Past the cap only the newest half is kept.
	if len(p.buf) > p.max {
		keep := p.max / 2
		p.buf = append(p.buf[:0], p.buf[len(p.buf)-keep:]...)
	}

	return nil, nil
}

// Flush never completes a wedge burst: only Enter does.
func (p *WedgePipeline) Flush(time.Time) []CandidateCode { return nil }

func (p *WedgePipeline) Reset() {
	p.buf = p.buf[:0]
	p.last = time.Time{}
}

// Buffered returns the pending keys.
func (p *WedgePipeline) Buffered() string { return string(p.buf) }
