package devices

import (
	"context"
	"errors"
	"strings"
	"time"

	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

// DefaultBluetoothDiscoveryTimeout bounds one peripheral discovery pass.
const DefaultBluetoothDiscoveryTimeout = 3 * time.Second

// GATT services advertised by common BLE scanners.
const (
	ServiceBattery    = "0000180f-0000-1000-8000-00805f9b34fb"
	ServiceVendorFFF0 = "0000fff0-0000-1000-8000-00805f9b34fb"
	ServiceISSC       = "49535343-fe7d-4ae5-8fa9-9fafd205e455"
	ServiceNordicUART = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
)

// ScannerFilter is the peripheral request filter for BLE scanners.
func ScannerFilter() host.BLEFilter {
	return host.BLEFilter{
		NamePrefixes:     []string{"Scanner", "Barcode", "Ring", "Socket"},
		OptionalServices: []string{ServiceBattery, ServiceVendorFFF0, ServiceISSC, ServiceNordicUART},
	}
}

// BluetoothStrategy requests BLE peripherals matching ScannerFilter.
type BluetoothStrategy struct {
	host    host.BLEHost
	timeout time.Duration
}

// NewBluetoothStrategy creates a BLE discovery strategy.
func NewBluetoothStrategy(h host.BLEHost, timeout time.Duration) *BluetoothStrategy {
	if timeout <= 0 {
		timeout = DefaultBluetoothDiscoveryTimeout
	}

	return &BluetoothStrategy{host: h, timeout: timeout}
}

func (s *BluetoothStrategy) Name() string                     { return SourceBluetooth }
func (s *BluetoothStrategy) Priority() int                    { return PriorityBluetooth }
func (s *BluetoothStrategy) IsAvailable(_ context.Context) bool { return s.host != nil }

func (s *BluetoothStrategy) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.host.Discover(ctx, ScannerFilter())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, customerrors.ErrTimeout
		}

		return nil, err
	}

	out := make([]*Descriptor, 0, len(found))
	for _, p := range found {
		name := p.Name
		if name == "" {
			name = "Bluetooth scanner"
		}

		if strings.Contains(strings.ToLower(name), "ring") {
			name += " (ring)"
		}

		out = append(out, &Descriptor{
			ID:          StableID(KindBluetooth, p.ID),
			Kind:        KindBluetooth,
			DisplayName: name,
			QualityTier: QualityGood,
			Source:      SourceBluetooth,
			Specs:       map[string]string{SpecPeripheralID: p.ID},
		})
	}

	return out, nil
}
