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

// DefaultBluetoothConnectTimeout bounds the GATT connect and service discovery.
const DefaultBluetoothConnectTimeout = 10 * time.Second

// BluetoothDriver subscribes to every readable or notifying characteristic of a
// connected peripheral.
type BluetoothDriver struct {
	host           host.BLEHost
	connectTimeout time.Duration
}

// NewBluetoothDriver creates a BLE driver.
func NewBluetoothDriver(h host.BLEHost, connectTimeout time.Duration) *BluetoothDriver {
	if connectTimeout <= 0 {
		connectTimeout = DefaultBluetoothConnectTimeout
	}

	return &BluetoothDriver{host: h, connectTimeout: connectTimeout}
}

func (b *BluetoothDriver) Kind() devices.TransportKind { return devices.KindBluetooth }

func (b *BluetoothDriver) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	if b.host == nil {
		return nil, customerrors.ErrUnsupported
	}

	id := d.Spec(devices.SpecPeripheralID)
	if id == "" {
		return nil, fmt.Errorf("%w: %s has no peripheral id", customerrors.ErrDeviceNotFound, d.ID)
	}

	type connected struct {
		p        host.BLEPeripheral
		services []host.BLEService
	}

	c, err := withOpenTimeout(ctx, b.connectTimeout, func(ctx context.Context) (connected, error) {
		p, err := b.host.Connect(ctx, id)
		if err != nil {
			return connected{}, err
		}

		services, err := p.Services(ctx)
		if err != nil {
			_ = p.Disconnect()

			return connected{}, err
		}

		return connected{p: p, services: services}, nil
	})
	if err != nil {
		return nil, err
	}

	h := newBaseHandle(ctx, devices.KindBluetooth, c.p.Disconnect)
	log := zerolog.Ctx(ctx)

	subscribed := 0

	for _, svc := range c.services {
		for _, ch := range svc.Characteristics {
			props := ch.Properties()
			if !props.Read && !props.Notify {
				continue
			}

			err := ch.Subscribe(func(value []byte) {
				h.emit(RawSignal{Data: append([]byte(nil), value...)})
			})
			if err != nil {
				log.Debug().Err(err).Str("service", svc.UUID).Str("characteristic", ch.UUID()).
					Msg("characteristic subscribe failed")

				continue
			}

			subscribed++
		}
	}

	if subscribed == 0 {
		_ = h.Close()

		return nil, fmt.Errorf("%w: peripheral %s exposes no readable characteristic", customerrors.ErrUnsupported, id)
	}

	go func() {
		select {
		case <-h.ctx.Done():
		case <-c.p.Disconnected():
			if h.ctx.Err() != nil {
				return
			}

			log.Warn().Str("peripheral", id).Msg("bluetooth peripheral disconnected")
			h.lost(nil)
		}
	}()

	return h, nil
}
