package scanner

import (
	"os"

	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/host"
)

// Hosts are the platform capabilities the service runs on. A nil field
// disables the transports that need it.
type Hosts struct {
	Capture host.CaptureHost
	HID     host.HIDHost
	Serial  host.SerialHost
	BLE     host.BLEHost
	Keys    host.KeySource
	Browser devices.ServiceBrowser
}

// DefaultHosts returns the adapters available to a headless process for the
// transports enabled in cfg. There is no BLE adapter; Bluetooth devices are
// only reachable through an injected host.
func DefaultHosts(cfg *config.Config) Hosts {
	var h Hosts

	t := cfg.Transports

	if t.Camera.Enabled && t.Camera.ImageDir != "" {
		h.Capture = host.NewImageFolderCapture(t.Camera.ImageDir, t.Camera.FPS)
	}

	if t.HID.Enabled {
		h.HID = host.NewHIDAPI()
	}

	if t.Serial.Enabled {
		h.Serial = host.NewSerialPorts()
	}

	if t.KeyboardWedge.Enabled && t.KeyboardWedge.Stdin {
		h.Keys = host.NewReaderKeySource(os.Stdin)
	}

	if t.Network.Enabled && t.Network.MDNS.Enabled {
		h.Browser = devices.NewMDNSBrowser(t.Network.MDNS.Service, t.Network.MDNS.Timeout)
	}

	return h
}
