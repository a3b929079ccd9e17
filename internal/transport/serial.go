package transport

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

const serialChunkSize = 256

// SerialDriver pushes byte chunks from a serial scanner.
type SerialDriver struct {
	host host.SerialHost
}

// NewSerialDriver creates a serial driver.
func NewSerialDriver(h host.SerialHost) *SerialDriver {
	return &SerialDriver{host: h}
}

func (s *SerialDriver) Kind() devices.TransportKind { return devices.KindSerial }

func (s *SerialDriver) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	if s.host == nil {
		return nil, customerrors.ErrUnsupported
	}

	port := d.Spec(devices.SpecPort)
	if port == "" {
		return nil, fmt.Errorf("%w: %s has no port", customerrors.ErrDeviceNotFound, d.ID)
	}

	baud, err := strconv.Atoi(d.Spec(devices.SpecBaudRate))
	if err != nil || baud <= 0 {
		baud = devices.DefaultBaudRate
	}

	p, err := s.host.Open(port, baud)
	if err != nil {
		return nil, err
	}

	h := newBaseHandle(ctx, devices.KindSerial, p.Close)

	go s.pump(h, p)

	return h, nil
}

// pump relies on the port read timeout to notice shutdown between chunks.
func (s *SerialDriver) pump(h *baseHandle, p host.SerialPort) {
	buf := make([]byte, serialChunkSize)

	for {
		n, err := p.Read(buf)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}

			zerolog.Ctx(h.ctx).Warn().Err(err).Msg("serial port read failed")
			h.lost(err)

			return
		}

		if h.ctx.Err() != nil {
			return
		}

		if n == 0 {
			continue
		}

		if !h.emit(RawSignal{Data: append([]byte(nil), buf[:n]...)}) {
			return
		}
	}
}
