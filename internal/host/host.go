// Package host declares the platform capabilities the scanner core consumes
// (frame capture, raw HID, BLE peripherals, keystrokes, serial ports) and ships
// the concrete adapters available to a headless Go process.
//
// Adapters must report a user-declined access request as customerrors.ErrPermissionDenied
// and an absent capability as customerrors.ErrUnsupported.
package host

import (
	"context"
	"image"
	"time"
)

// CaptureDeviceInfo describes one video capture device.
type CaptureDeviceInfo struct {
	ID     string
	Label  string
	Facing string
}

// Frame is one captured video frame.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// FrameStream yields frames as the platform makes them ready.
type FrameStream interface {
	// NextFrame blocks until the next frame is ready or ctx is done.
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// CaptureHost enumerates and opens capture devices.
type CaptureHost interface {
	ListCaptureDevices(ctx context.Context) ([]CaptureDeviceInfo, error)
	OpenCapture(ctx context.Context, deviceID string) (FrameStream, error)
}

// HIDDeviceInfo describes an attached human-interface device.
type HIDDeviceInfo struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	UsagePage    uint16
	Usage        uint16
}

// HIDDevice is an open HID handle delivering input reports.
type HIDDevice interface {
	Read(p []byte) (int, error)
	Close() error
}

// HIDHost enumerates and opens HID devices.
type HIDHost interface {
	Enumerate() ([]HIDDeviceInfo, error)
	Open(path string) (HIDDevice, error)
}

// BLEFilter narrows a peripheral request.
type BLEFilter struct {
	NamePrefixes     []string
	OptionalServices []string
}

// BLEPeripheralInfo describes an advertised peripheral.
type BLEPeripheralInfo struct {
	ID   string
	Name string
}

// CharacteristicProps lists what a characteristic supports.
type CharacteristicProps struct {
	Read   bool
	Notify bool
}

// BLECharacteristic is a GATT characteristic.
type BLECharacteristic interface {
	UUID() string
	Properties() CharacteristicProps
	// Subscribe delivers value-changed notifications to fn until the peripheral disconnects.
	Subscribe(fn func(value []byte)) error
}

// BLEService is a discovered GATT service.
type BLEService struct {
	UUID            string
	Characteristics []BLECharacteristic
}

// BLEPeripheral is a connected peripheral.
type BLEPeripheral interface {
	Services(ctx context.Context) ([]BLEService, error)
	// Disconnected is closed when the peripheral drops or Disconnect is called.
	Disconnected() <-chan struct{}
	Disconnect() error
}

// BLEHost discovers and connects low-energy peripherals.
type BLEHost interface {
	Discover(ctx context.Context, filter BLEFilter) ([]BLEPeripheralInfo, error)
	Connect(ctx context.Context, peripheralID string) (BLEPeripheral, error)
}

// Enter is the Key value of an Enter keystroke.
const Enter = "Enter"

// Keystroke is one key event from the host keyboard stream.
type Keystroke struct {
	Key string
	At  time.Time
}

// KeySource installs a keystroke listener; the listener is removed when ctx is done
// and the returned channel is closed.
type KeySource interface {
	Listen(ctx context.Context) (<-chan Keystroke, error)
}

// SerialPortInfo describes a serial port.
type SerialPortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// SerialPort is an open serial port.
type SerialPort interface {
	Read(p []byte) (int, error)
	Close() error
}

// SerialHost enumerates and opens serial ports.
type SerialHost interface {
	ListPorts() ([]SerialPortInfo, error)
	Open(name string, baudRate int) (SerialPort, error)
}
