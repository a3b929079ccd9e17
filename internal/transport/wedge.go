package transport

import (
	"context"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

// WedgeDriver installs a keystroke listener. There is no handshake; the listener
// is removed when the handle closes.
type WedgeDriver struct {
	keys host.KeySource
}

// NewWedgeDriver creates a keyboard wedge driver.
func NewWedgeDriver(keys host.KeySource) *WedgeDriver {
	return &WedgeDriver{keys: keys}
}

func (w *WedgeDriver) Kind() devices.TransportKind { return devices.KindKeyboardWedge }

func (w *WedgeDriver) Open(ctx context.Context, _ *devices.Descriptor) (Handle, error) {
	if w.keys == nil {
		return nil, customerrors.ErrUnsupported
	}

	h := newBaseHandle(ctx, devices.KindKeyboardWedge, nil)

	keys, err := w.keys.Listen(h.ctx)
	if err != nil {
		_ = h.Close()

		return nil, err
	}

	go func() {
		for {
			select {
			case <-h.ctx.Done():
				return
			case ks, ok := <-keys:
				if !ok {
					h.lost(nil)

					return
				}

				if !h.emit(RawSignal{At: ks.At, Key: ks}) {
					return
				}
			}
		}
	}()

	return h, nil
}
