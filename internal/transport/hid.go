package transport

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

const hidReportSize = 64

// HIDDriver pushes raw input reports from a HID scanner.
type HIDDriver struct {
	host host.HIDHost
}

// NewHIDDriver creates a HID driver.
func NewHIDDriver(h host.HIDHost) *HIDDriver {
	return &HIDDriver{host: h}
}

func (d *HIDDriver) Kind() devices.TransportKind { return devices.KindUSB }

func (d *HIDDriver) Open(ctx context.Context, desc *devices.Descriptor) (Handle, error) {
	if d.host == nil {
		return nil, customerrors.ErrUnsupported
	}

	path := desc.Spec(devices.SpecPath)
	if path == "" {
		return nil, fmt.Errorf("%w: %s has no hid path", customerrors.ErrDeviceNotFound, desc.ID)
	}

	dev, err := d.host.Open(path)
	if err != nil {
		return nil, err
	}

	h := newBaseHandle(ctx, devices.KindUSB, dev.Close)

	go d.pump(h, dev)

	return h, nil
}

func (d *HIDDriver) pump(h *baseHandle, dev host.HIDDevice) {
	buf := make([]byte, hidReportSize)

	for {
		n, err := dev.Read(buf)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}

			zerolog.Ctx(h.ctx).Warn().Err(err).Msg("hid device read failed")
			h.lost(err)

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
