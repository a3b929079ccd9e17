package host

import (
	"fmt"
	"strings"

	"github.com/karalabe/hid"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// HIDAPI is the HIDHost backed by hidapi through karalabe/hid.
type HIDAPI struct{}

// NewHIDAPI returns the hidapi host adapter.
func NewHIDAPI() *HIDAPI {
	return &HIDAPI{}
}

// Supported reports whether hidapi was compiled in for this platform.
func (h *HIDAPI) Supported() bool {
	return hid.Supported()
}

// Enumerate lists all attached HID devices.
func (h *HIDAPI) Enumerate() ([]HIDDeviceInfo, error) {
	if !hid.Supported() {
		return nil, customerrors.ErrUnsupported
	}

	infos := hid.Enumerate(0, 0)

	out := make([]HIDDeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, HIDDeviceInfo{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Serial:       strings.TrimSpace(info.Serial),
			Manufacturer: strings.TrimSpace(info.Manufacturer),
			Product:      strings.TrimSpace(info.Product),
			UsagePage:    info.UsagePage,
			Usage:        info.Usage,
		})
	}

	return out, nil
}

// Open opens the device at path.
func (h *HIDAPI) Open(path string) (HIDDevice, error) {
	if !hid.Supported() {
		return nil, customerrors.ErrUnsupported
	}

	for _, info := range hid.Enumerate(0, 0) {
		if info.Path != path {
			continue
		}

		dev, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("open hid %04x:%04x: %w", info.VendorID, info.ProductID, mapFSError(err))
		}

		return dev, nil
	}

	return nil, fmt.Errorf("%w: %s", customerrors.ErrDeviceNotFound, path)
}
