package decode

import (
	"regexp"
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/transport"
)

const (
	hidRecordSize = 8
	hidUsageEnter = 40
	hidShiftMask  = 0x02 | 0x20

	minHIDLength = 6
	maxHIDLength = 50
)

//nolint:gochecknoglobals // lookup tables
var (
	hidCharset = regexp.MustCompile(`^[0-9A-Za-z\-\.\+\*\/\$\%\[\]]+$`)

	hidUsages = func() map[byte]rune {
		m := map[byte]rune{44: ' ', 45: '-', 46: '=', 47: '[', 48: ']', 49: '\\', 51: ';', 52: '\'', 53: '`', 54: ',', 55: '.', 56: '/'}
		for i := range 26 {
			m[byte(4+i)] = rune('a' + i)
		}

		for i, r := range "1234567890" {
			m[byte(30+i)] = r
		}

		return m
	}()

	hidShifted = map[rune]rune{
		'1': '!', '2': '@', '3': '#', '4': '$', '5': '%', '6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
		'-': '_', '=': '+', '[': '{', ']': '}', '\\': '|', ';': ':', '\'': '"', '`': '~', ',': '<', '.': '>', '/': '?',
	}
)

// HIDPipeline maps keyboard-usage input reports to characters. A burst ends on
// Enter or when no report arrived for the idle window.
type HIDPipeline struct {
	idle time.Duration

	buf     []rune
	pressed map[byte]struct{}
	last    time.Time
}

// NewHIDPipeline creates a HID report pipeline.
func NewHIDPipeline(idle time.Duration) *HIDPipeline {
	return &HIDPipeline{idle: idle, pressed: map[byte]struct{}{}}
}

func (p *HIDPipeline) Decode(sig transport.RawSignal) ([]CandidateCode, error) {
	var out []CandidateCode

	p.last = sig.At

	for off := 0; off+hidRecordSize <= len(sig.Data); off += hidRecordSize {
		rec := sig.Data[off : off+hidRecordSize]
		shift := rec[0]&hidShiftMask != 0

		now := make(map[byte]struct{}, hidRecordSize-2)

		for _, usage := range rec[2:] {
			if usage == 0 {
				continue
			}

			now[usage] = struct{}{}

			if _, held := p.pressed[usage]; held {
				continue
			}

			if usage == hidUsageEnter {
				if c, ok := p.finish(sig.At); ok {
					out = append(out, c)
				}

				continue
			}

			if r, ok := hidRune(usage, shift); ok {
				p.buf = append(p.buf, r)
			}
		}

		p.pressed = now
	}

	return out, nil
}

func (p *HIDPipeline) Flush(now time.Time) []CandidateCode {
	if len(p.buf) == 0 || now.Sub(p.last) < p.idle {
		return nil
	}

	if c, ok := p.finish(now); ok {
		return []CandidateCode{c}
	}

	return nil
}

func (p *HIDPipeline) Reset() {
	p.buf = p.buf[:0]
	p.pressed = map[byte]struct{}{}
}

func (p *HIDPipeline) finish(at time.Time) (CandidateCode, bool) {
	text := string(p.buf)
	p.buf = p.buf[:0]

	if len(text) < minHIDLength || len(text) > maxHIDLength || !hidCharset.MatchString(text) {
		return CandidateCode{}, false
	}

	return candidate(text, devices.KindUSB, at), true
}

func hidRune(usage byte, shift bool) (rune, bool) {
	r, ok := hidUsages[usage]
	if !ok || !shift {
		return r, ok
	}

	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A', true
	}

	if s, ok := hidShifted[r]; ok {
		return s, true
	}

	return r, true
}
