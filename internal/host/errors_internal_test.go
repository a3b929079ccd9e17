package host

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

type codedError struct {
	code serial.PortErrorCode
}

func (e codedError) Error() string              { return "serial port error" }
func (e codedError) Code() serial.PortErrorCode { return e.code }

func TestMapSerialError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "permission denied", err: codedError{code: serial.PermissionDenied}, want: customerrors.ErrPermissionDenied},
		{name: "port not found", err: codedError{code: serial.PortNotFound}, want: customerrors.ErrDeviceNotFound},
		{name: "eacces", err: &fs.PathError{Op: "open", Path: "/dev/ttyACM0", Err: syscall.EACCES}, want: customerrors.ErrPermissionDenied},
		{name: "enoent", err: &fs.PathError{Op: "open", Path: "/dev/ttyACM9", Err: syscall.ENOENT}, want: customerrors.ErrDeviceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := mapSerialError(tt.err)
			require.ErrorIs(t, got, tt.want)
			require.ErrorIs(t, got, tt.err)
		})
	}

	busy := codedError{code: serial.PortBusy}
	got := mapSerialError(busy)
	assert.Equal(t, busy, got)
	assert.NotErrorIs(t, got, customerrors.ErrPermissionDenied)
	assert.NotErrorIs(t, got, customerrors.ErrDeviceNotFound)
}

func TestSerialPorts_OpenMapsErrors(t *testing.T) {
	t.Parallel()

	ports := &SerialPorts{open: func(string, *serial.Mode) (serial.Port, error) {
		return nil, codedError{code: serial.PermissionDenied}
	}}

	_, err := ports.Open("/dev/ttyACM0", 9600)
	require.ErrorIs(t, err, customerrors.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "/dev/ttyACM0")

	ports.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("boom")
	}

	_, err = ports.Open("/dev/ttyACM0", 9600)
	require.Error(t, err)
	assert.NotErrorIs(t, err, customerrors.ErrPermissionDenied)
}

func TestMapFSError(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, mapFSError(&fs.PathError{Op: "open", Path: "/dev/hidraw0", Err: syscall.EPERM}), customerrors.ErrPermissionDenied)
	require.ErrorIs(t, mapFSError(fs.ErrNotExist), customerrors.ErrDeviceNotFound)

	plain := errors.New("hidapi: failed to open device")
	assert.Equal(t, plain, mapFSError(plain))
}
