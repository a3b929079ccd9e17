package devices

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bavix/scanbridge/internal/host"
)

// Point-of-sale HID usage page and the scanner usages under it.
const (
	usagePagePOS      = 0x0008
	usageBarcodeBadge = 0x0002
	usageBarcodeScan  = 0x0004
)

// KnownScannerVendors maps USB vendor ids to scanner manufacturers.
var KnownScannerVendors = map[uint16]string{ //nolint:gochecknoglobals // lookup table
	0x05e0: "Symbol/Zebra",
	0x0536: "Hand Held Products",
	0x0c2e: "Honeywell",
	0x04b4: "Datalogic",
	0x1310: "Generic",
	0x05f9: "PSC",
	0x0801: "Mag-Tek",
}

//nolint:gochecknoglobals // lookup table
var scannerTerms = []string{"scanner", "barcode", "datalogic", "symbol", "zebra", "honeywell", "motorola", "intermec"}

// HIDStrategy lists attached HID devices that look like barcode scanners.
type HIDStrategy struct {
	host         host.HIDHost
	extraVendors []uint16
}

// NewHIDStrategy creates a HID discovery strategy. extraVendors extends the known vendor table.
func NewHIDStrategy(h host.HIDHost, extraVendors ...uint16) *HIDStrategy {
	return &HIDStrategy{host: h, extraVendors: extraVendors}
}

func (s *HIDStrategy) Name() string  { return SourceHID }
func (s *HIDStrategy) Priority() int { return PriorityHID }

func (s *HIDStrategy) IsAvailable(_ context.Context) bool {
	if s.host == nil {
		return false
	}

	if sup, ok := s.host.(interface{ Supported() bool }); ok {
		return sup.Supported()
	}

	return true
}

func (s *HIDStrategy) DiscoverDevices(ctx context.Context) ([]*Descriptor, error) {
	infos, err := s.host.Enumerate()
	if err != nil {
		return nil, err
	}

	var out []*Descriptor

	for _, info := range infos {
		if !s.IsScanner(info) {
			continue
		}

		vendor := KnownScannerVendors[info.VendorID]
		if vendor == "" {
			vendor = info.Manufacturer
		}

		name := strings.TrimSpace(info.Manufacturer + " " + info.Product)
		if name == "" {
			name = fmt.Sprintf("USB scanner %04x:%04x", info.VendorID, info.ProductID)
		}

		out = append(out, &Descriptor{
			ID:          StableID(KindUSB, hidKey(info)),
			Kind:        KindUSB,
			DisplayName: name,
			QualityTier: QualityProfessional,
			Source:      SourceHID,
			Specs: map[string]string{
				SpecPath:      info.Path,
				SpecVendorID:  fmt.Sprintf("0x%04x", info.VendorID),
				SpecProductID: fmt.Sprintf("0x%04x", info.ProductID),
				SpecVendor:    vendor,
				SpecSerial:    info.Serial,
			},
		})
	}

	return out, nil
}

// IsScanner reports whether a HID device is treated as a barcode scanner.
func (s *HIDStrategy) IsScanner(info host.HIDDeviceInfo) bool {
	if _, ok := KnownScannerVendors[info.VendorID]; ok {
		return true
	}

	if slices.Contains(s.extraVendors, info.VendorID) {
		return true
	}

	if info.UsagePage == usagePagePOS && (info.Usage == usageBarcodeScan || info.Usage == usageBarcodeBadge) {
		return true
	}

	names := strings.ToLower(info.Manufacturer + " " + info.Product)
	for _, term := range scannerTerms {
		if strings.Contains(names, term) {
			return true
		}
	}

	return false
}

// hidKey prefers the serial number so a scanner keeps its id across ports.
func hidKey(info host.HIDDeviceInfo) string {
	if info.Serial != "" {
		return fmt.Sprintf("%04x:%04x:%s", info.VendorID, info.ProductID, info.Serial)
	}

	return info.Path
}
