package devices

import (
	"context"
	"slices"
	"strconv"

	"github.com/bavix/scanbridge/internal/host"
)

// DefaultBaudRate is the rate most RS-232 and USB-CDC scanners ship with.
const DefaultBaudRate = 9600

// SerialStrategy lists USB serial ports plus explicitly configured ports.
type SerialStrategy struct {
	host     host.SerialHost
	ports    []string
	baudRate int
}

// NewSerialStrategy creates a serial discovery strategy.
func NewSerialStrategy(h host.SerialHost, ports []string, baudRate int) *SerialStrategy {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	return &SerialStrategy{host: h, ports: ports, baudRate: baudRate}
}

func (s *SerialStrategy) Name() string                     { return SourceSerial }
func (s *SerialStrategy) Priority() int                    { return PrioritySerial }
func (s *SerialStrategy) IsAvailable(_ context.Context) bool { return s.host != nil }

func (s *SerialStrategy) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	infos, err := s.host.ListPorts()
	if err != nil && len(s.ports) == 0 {
		return nil, err
	}

	var out []*Descriptor

	listed := make(map[string]struct{}, len(infos))

	for _, info := range infos {
		listed[info.Name] = struct{}{}

		if !info.IsUSB && !slices.Contains(s.ports, info.Name) {
			continue
		}

		name := info.Product
		if name == "" {
			name = info.Name
		}

		out = append(out, s.descriptor(info.Name, "Serial scanner "+name, map[string]string{
			SpecVendorID:  info.VID,
			SpecProductID: info.PID,
			SpecSerial:    info.Serial,
		}))
	}

	for _, port := range s.ports {
		if _, ok := listed[port]; ok {
			continue
		}

		out = append(out, s.descriptor(port, "Serial scanner "+port, nil))
	}

	return out, nil
}

func (s *SerialStrategy) descriptor(port, name string, extra map[string]string) *Descriptor {
	specs := map[string]string{
		SpecPort:     port,
		SpecBaudRate: strconv.Itoa(s.baudRate),
	}

	for k, v := range extra {
		if v != "" {
			specs[k] = v
		}
	}

	return &Descriptor{
		ID:          StableID(KindSerial, port),
		Kind:        KindSerial,
		DisplayName: name,
		QualityTier: QualityProfessional,
		Source:      SourceSerial,
		Specs:       specs,
	}
}
