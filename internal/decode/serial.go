package decode

import (
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/transport"
)

const (
	asciiSTX = 0x02
	asciiETX = 0x03

	maxSerialBuffer = 8 << 10
)

// SerialPipeline frames CR/LF terminated lines. STX/ETX framing bytes are dropped
// and an unterminated line longer than 8 KiB is discarded.
type SerialPipeline struct {
	buf []byte
}

// NewSerialPipeline creates a serial line pipeline.
func NewSerialPipeline() *SerialPipeline {
	return &SerialPipeline{}
}

func (p *SerialPipeline) Decode(sig transport.RawSignal) ([]CandidateCode, error) {
	var out []CandidateCode

	for _, b := range sig.Data {
		switch b {
		case '\r', '\n':
			if text := trimPayload(string(p.buf)); text != "" {
				out = append(out, candidate(text, devices.KindSerial, sig.At))
			}

			p.buf = p.buf[:0]
		case asciiSTX, asciiETX:
		default:
			p.buf = append(p.buf, b)
			if len(p.buf) > maxSerialBuffer {
				p.buf = p.buf[:0]
			}
		}
	}

	return out, nil
}

func (p *SerialPipeline) Flush(time.Time) []CandidateCode { return nil }

func (p *SerialPipeline) Reset() { p.buf = p.buf[:0] }
