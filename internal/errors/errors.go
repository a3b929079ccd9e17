package errors

import (
	"errors"
	"fmt"
)

// Acquisition taxonomy.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrUnsupported      = errors.New("transport not supported on this host")
	ErrTimeout          = errors.New("timed out waiting for device")
	ErrConnectionLost   = errors.New("connection lost")
	ErrInvalidFormat    = errors.New("barcode format not recognized")
	ErrChecksumMismatch = errors.New("invalid checksum")
	ErrAlreadyActive    = errors.New("scan session already active")
)

// Operational errors.
var (
	ErrNotConnected              = errors.New("no device connected")
	ErrConnectInProgress         = errors.New("connection attempt already in progress")
	ErrNoRead                    = errors.New("could not read barcode")
	ErrUnknownDevice             = errors.New("unknown device id")
	ErrProductNotFound           = errors.New("product not found")
	ErrSinkNotConnected          = errors.New("event sink not connected")
	ErrMergerNotSet              = errors.New("device merger not set")
	ErrFileWatcherAlreadyEnabled = errors.New("file watcher already enabled")
	ErrHandleClosed              = errors.New("transport handle closed")
	ErrNoDriver                  = errors.New("no driver registered for transport")
)

// ErrUnknownDeviceWithID returns an error for a device id missing from the last discovery pass.
func ErrUnknownDeviceWithID(deviceID string) error {
	return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
}

// ErrNoDriverForKind returns an error for a transport kind without a registered driver.
func ErrNoDriverForKind(kind string) error {
	return fmt.Errorf("%w: %s", ErrNoDriver, kind)
}

