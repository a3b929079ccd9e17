package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

// DefaultCameraOpenTimeout bounds the capture permission prompt and stream start.
const DefaultCameraOpenTimeout = 10 * time.Second

// CameraDriver streams frames from a capture host. Frames are pulled one at a time
// as the platform signals them ready.
type CameraDriver struct {
	host        host.CaptureHost
	openTimeout time.Duration
}

// NewCameraDriver creates a camera driver.
func NewCameraDriver(h host.CaptureHost, openTimeout time.Duration) *CameraDriver {
	if openTimeout <= 0 {
		openTimeout = DefaultCameraOpenTimeout
	}

	return &CameraDriver{host: h, openTimeout: openTimeout}
}

func (c *CameraDriver) Kind() devices.TransportKind { return devices.KindCamera }

func (c *CameraDriver) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	if c.host == nil {
		return nil, customerrors.ErrUnsupported
	}

	id := d.Spec(devices.SpecCaptureID)
	if id == "" {
		return nil, fmt.Errorf("%w: %s has no capture id", customerrors.ErrDeviceNotFound, d.ID)
	}

	stream, err := withOpenTimeout(ctx, c.openTimeout, func(ctx context.Context) (host.FrameStream, error) {
		return c.host.OpenCapture(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	h := newBaseHandle(ctx, devices.KindCamera, stream.Close)

	go c.pump(h, stream)

	return h, nil
}

func (c *CameraDriver) pump(h *baseHandle, stream host.FrameStream) {
	log := zerolog.Ctx(h.ctx)

	for {
		frame, err := stream.NextFrame(h.ctx)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}

			log.Warn().Err(err).Msg("camera stream ended")
			h.lost(err)

			return
		}

		if !h.emit(RawSignal{At: frame.At, Frame: &frame}) {
			return
		}
	}
}
