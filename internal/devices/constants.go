package devices

// TransportKind identifies the transport a device is reached through.
type TransportKind string

// Transport kinds.
const (
	KindCamera        TransportKind = "camera"
	KindUSB           TransportKind = "usb"
	KindSerial        TransportKind = "serial"
	KindBluetooth     TransportKind = "bluetooth"
	KindNetwork       TransportKind = "network"
	KindKeyboardWedge TransportKind = "keyboardWedge"
	KindDemo          TransportKind = "demo"
	KindAI            TransportKind = "ai"
)

// Quality tier constants.
const (
	QualityExcellent    = "excellent"
	QualityGood         = "good"
	QualityProfessional = "professional"
	QualityStandard     = "standard"
	QualityBasic        = "basic"
)

// Discovery source constants.
const (
	SourceCamera    = "camera"
	SourceHID       = "hid"
	SourceSerial    = "serial"
	SourceBluetooth = "bluetooth"
	SourceNetwork   = "network"
	SourceMDNS      = "mdns"
	SourceBuiltin   = "builtin"
)

// Priority constants (higher = more important when two sources report the same id).
const (
	PriorityHID       = 100
	PrioritySerial    = 90
	PriorityCamera    = 80
	PriorityBluetooth = 70
	PriorityNetwork   = 60
	PriorityBuiltin   = 10
)

// Spec keys consumed by transport drivers.
const (
	SpecPath         = "path"
	SpecPort         = "port"
	SpecBaudRate     = "baud_rate"
	SpecCaptureID    = "capture_id"
	SpecFacing       = "facing"
	SpecPeripheralID = "peripheral_id"
	SpecAddress      = "address"
	SpecVendorID     = "vendor_id"
	SpecProductID    = "product_id"
	SpecVendor       = "vendor"
	SpecSerial       = "serial"
	SpecCandidates   = "candidates"
)

// kindOrder ranks kinds for listing: hardware first, simulations last.
var kindOrder = map[TransportKind]int{ //nolint:gochecknoglobals // lookup table
	KindUSB:           0,
	KindSerial:        1,
	KindCamera:        2,
	KindBluetooth:     3,
	KindNetwork:       4,
	KindKeyboardWedge: 5,
	KindDemo:          6,
	KindAI:            7,
}
