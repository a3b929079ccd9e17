// Package hosttest provides in-memory host capabilities for tests.
package hosttest

import (
	"context"
	"io"
	"sync"

	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

// HID is a fake HID host. Reports pushed to a device are returned by Read in order.
type HID struct {
	mu      sync.Mutex
	Infos   []host.HIDDeviceInfo
	OpenErr error
	devices map[string]*HIDDevice
}

// NewHID returns a fake HID host listing infos.
func NewHID(infos ...host.HIDDeviceInfo) *HID {
	return &HID{Infos: infos, devices: map[string]*HIDDevice{}}
}

func (h *HID) Enumerate() ([]host.HIDDeviceInfo, error) {
	return h.Infos, nil
}

func (h *HID) Open(path string) (host.HIDDevice, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.OpenErr != nil {
		return nil, h.OpenErr
	}

	for _, info := range h.Infos {
		if info.Path == path {
			d := &HIDDevice{reports: make(chan []byte, 64), closed: make(chan struct{})}
			h.devices[path] = d

			return d, nil
		}
	}

	return nil, customerrors.ErrDeviceNotFound
}

// Device returns the most recently opened device at path.
func (h *HID) Device(path string) *HIDDevice {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.devices[path]
}

// HIDDevice is an open fake device.
type HIDDevice struct {
	reports   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// Push queues an input report.
func (d *HIDDevice) Push(report []byte) {
	d.reports <- report
}

// Unplug makes the next Read fail as if the device was removed.
func (d *HIDDevice) Unplug() {
	close(d.reports)
}

func (d *HIDDevice) Read(p []byte) (int, error) {
	select {
	case r, ok := <-d.reports:
		if !ok {
			return 0, io.ErrUnexpectedEOF
		}

		return copy(p, r), nil
	case <-d.closed:
		return 0, io.EOF
	}
}

func (d *HIDDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })

	return nil
}

// Closed reports whether Close was called.
func (d *HIDDevice) Closed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// Keys is a fake keystroke source fed through Send.
type Keys struct {
	mu        sync.Mutex
	ch        chan host.Keystroke
	listening bool
	ListenErr error
}

// NewKeys returns a fake key source.
func NewKeys() *Keys {
	return &Keys{}
}

func (k *Keys) Listen(ctx context.Context) (<-chan host.Keystroke, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ListenErr != nil {
		return nil, k.ListenErr
	}

	in := make(chan host.Keystroke, 256)
	out := make(chan host.Keystroke, 256)
	k.ch = in
	k.listening = true

	go func() {
		defer close(out)
		defer func() {
			k.mu.Lock()
			k.listening = false
			k.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ks := <-in:
				select {
				case out <- ks:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Send delivers a keystroke to the active listener. It reports false when none is installed.
func (k *Keys) Send(ks host.Keystroke) bool {
	k.mu.Lock()
	ch, ok := k.ch, k.listening
	k.mu.Unlock()

	if !ok {
		return false
	}

	ch <- ks

	return true
}

// Listening reports whether a listener is installed.
func (k *Keys) Listening() bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.listening
}

// BLE is a fake BLE host with a single peripheral.
type BLE struct {
	Peripherals []host.BLEPeripheralInfo
	DiscoverErr error
	ConnectErr  error
	Peripheral  *BLEPeripheral
}

func (b *BLE) Discover(ctx context.Context, _ host.BLEFilter) ([]host.BLEPeripheralInfo, error) {
	if b.DiscoverErr != nil {
		return nil, b.DiscoverErr
	}

	return b.Peripherals, nil
}

func (b *BLE) Connect(ctx context.Context, id string) (host.BLEPeripheral, error) {
	if b.ConnectErr != nil {
		return nil, b.ConnectErr
	}

	for _, p := range b.Peripherals {
		if p.ID == id {
			return b.Peripheral, nil
		}
	}

	return nil, customerrors.ErrDeviceNotFound
}

// BLEPeripheral is a fake connected peripheral.
type BLEPeripheral struct {
	ServiceList  []host.BLEService
	disconnected chan struct{}
	once         sync.Once
}

// NewBLEPeripheral returns a peripheral exposing services.
func NewBLEPeripheral(services ...host.BLEService) *BLEPeripheral {
	return &BLEPeripheral{ServiceList: services, disconnected: make(chan struct{})}
}

func (p *BLEPeripheral) Services(_ context.Context) ([]host.BLEService, error) {
	return p.ServiceList, nil
}

func (p *BLEPeripheral) Disconnected() <-chan struct{} { return p.disconnected }

func (p *BLEPeripheral) Disconnect() error {
	p.once.Do(func() { close(p.disconnected) })

	return nil
}

// Drop simulates the peripheral going away.
func (p *BLEPeripheral) Drop() { _ = p.Disconnect() }

// Characteristic is a fake GATT characteristic.
type Characteristic struct {
	ID    string
	Props host.CharacteristicProps

	mu sync.Mutex
	fn func([]byte)
}

func (c *Characteristic) UUID() string                         { return c.ID }
func (c *Characteristic) Properties() host.CharacteristicProps { return c.Props }

func (c *Characteristic) Subscribe(fn func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fn = fn

	return nil
}

// Notify delivers a value to the subscriber, if any.
func (c *Characteristic) Notify(value []byte) bool {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()

	if fn == nil {
		return false
	}

	fn(value)

	return true
}

// Capture is a fake capture host whose frames are pushed by the test.
type Capture struct {
	Devices []host.CaptureDeviceInfo
	OpenErr error

	mu      sync.Mutex
	streams map[string]*FrameStream
}

func (c *Capture) ListCaptureDevices(_ context.Context) ([]host.CaptureDeviceInfo, error) {
	return c.Devices, nil
}

func (c *Capture) OpenCapture(_ context.Context, id string) (host.FrameStream, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streams == nil {
		c.streams = map[string]*FrameStream{}
	}

	s := &FrameStream{frames: make(chan host.Frame, 256), closed: make(chan struct{})}
	c.streams[id] = s

	return s, nil
}

// Stream returns the last stream opened for id.
func (c *Capture) Stream(id string) *FrameStream {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.streams[id]
}

// FrameStream is a fake frame stream.
type FrameStream struct {
	frames chan host.Frame
	closed chan struct{}
	once   sync.Once
}

// Push queues a frame.
func (s *FrameStream) Push(f host.Frame) { s.frames <- f }

func (s *FrameStream) NextFrame(ctx context.Context) (host.Frame, error) {
	select {
	case <-ctx.Done():
		return host.Frame{}, ctx.Err()
	case <-s.closed:
		return host.Frame{}, customerrors.ErrHandleClosed
	case f := <-s.frames:
		return f, nil
	}
}

func (s *FrameStream) Close() error {
	s.once.Do(func() { close(s.closed) })

	return nil
}

// Closed reports whether Close was called.
func (s *FrameStream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
