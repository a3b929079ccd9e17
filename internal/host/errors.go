package host

import (
	"errors"
	"fmt"
	"io/fs"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// mapFSError folds filesystem and errno failures into the device taxonomy.
// EACCES and EPERM match fs.ErrPermission, ENOENT matches fs.ErrNotExist.
func mapFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", customerrors.ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", customerrors.ErrDeviceNotFound, err)
	default:
		return err
	}
}
