package host

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// DefaultSerialReadTimeout bounds each serial read so close is observed promptly.
const DefaultSerialReadTimeout = 100 * time.Millisecond

// SerialPorts is the SerialHost backed by go.bug.st/serial.
type SerialPorts struct {
	ReadTimeout time.Duration

	open func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialPorts returns the serial host adapter.
func NewSerialPorts() *SerialPorts {
	return &SerialPorts{ReadTimeout: DefaultSerialReadTimeout, open: serial.Open}
}

// ListPorts lists serial ports with USB details where the platform exposes them.
func (s *SerialPorts) ListPorts() ([]SerialPortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	out := make([]SerialPortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, SerialPortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}

	return out, nil
}

// Open opens name at baudRate, 8N1.
func (s *SerialPorts) Open(name string, baudRate int) (SerialPort, error) {
	open := s.open
	if open == nil {
		open = serial.Open
	}

	port, err := open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, mapSerialError(err))
	}

	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultSerialReadTimeout
	}

	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()

		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	return port, nil
}

// portErrorCoder matches *serial.PortError.
type portErrorCoder interface {
	Code() serial.PortErrorCode
}

func mapSerialError(err error) error {
	var pe portErrorCoder
	if errors.As(err, &pe) {
		switch pe.Code() { //nolint:exhaustive // other codes stay as reported
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %w", customerrors.ErrPermissionDenied, err)
		case serial.PortNotFound:
			return fmt.Errorf("%w: %w", customerrors.ErrDeviceNotFound, err)
		}
	}

	return mapFSError(err)
}
