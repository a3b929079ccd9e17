// Package transport opens devices and turns host capabilities into a single typed
// stream of raw signals per open handle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
)

const signalBuffer = 64

// RawSignal is one transport payload. Exactly one of Data, Frame, Key or Err is meaningful,
// depending on the transport that produced it.
type RawSignal struct {
	Kind  devices.TransportKind
	At    time.Time
	Data  []byte
	Frame *host.Frame
	Key   host.Keystroke
	Err   error
}

// Handle is an open device. Signals is never closed; readers select on Done.
type Handle interface {
	Signals() <-chan RawSignal
	// Done is closed once the handle is released, by Close or by device loss.
	Done() <-chan struct{}
	// Err is nil after Close and wraps ErrConnectionLost after device loss.
	Err() error
	Configure(ctx context.Context, opts map[string]any) error
	Close() error
}

// Armer is implemented by handles that produce a reading only on request.
type Armer interface {
	Arm()
}

// Driver opens devices of one transport kind.
type Driver interface {
	Kind() devices.TransportKind
	Open(ctx context.Context, d *devices.Descriptor) (Handle, error)
}

// baseHandle carries the signal channel and the idempotent shutdown shared by all drivers.
type baseHandle struct {
	kind    devices.TransportKind
	signals chan RawSignal
	done    chan struct{}
	ctx     context.Context //nolint:containedctx // scoped to the pump goroutines
	cancel  context.CancelFunc
	release func() error

	once sync.Once
	mu   sync.Mutex
	err  error
}

// newBaseHandle keeps the values (logger) of parent but not its cancellation:
// the handle lives until Close or device loss.
func newBaseHandle(parent context.Context, kind devices.TransportKind, release func() error) *baseHandle {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	return &baseHandle{
		kind:    kind,
		signals: make(chan RawSignal, signalBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		release: release,
	}
}

func (h *baseHandle) Signals() <-chan RawSignal { return h.signals }
func (h *baseHandle) Done() <-chan struct{}     { return h.done }

func (h *baseHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

func (h *baseHandle) Configure(context.Context, map[string]any) error { return nil }

func (h *baseHandle) Close() error {
	return h.shutdown(nil)
}

// lost releases the handle after an unexpected device failure.
func (h *baseHandle) lost(cause error) {
	if cause == nil || errors.Is(cause, customerrors.ErrConnectionLost) {
		cause = customerrors.ErrConnectionLost
	} else {
		cause = fmt.Errorf("%w: %w", customerrors.ErrConnectionLost, cause)
	}

	_ = h.shutdown(cause)
}

func (h *baseHandle) shutdown(cause error) error {
	var err error

	h.once.Do(func() {
		h.mu.Lock()
		h.err = cause
		h.mu.Unlock()

		h.cancel()

		if h.release != nil {
			err = h.release()
		}

		close(h.done)
	})

	return err
}

// emit delivers sig unless the handle is already shut down.
func (h *baseHandle) emit(sig RawSignal) bool {
	if sig.Kind == "" {
		sig.Kind = h.kind
	}

	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.signals <- sig:
		return true
	case <-h.done:
		return false
	}
}

// Registry maps transport kinds to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[devices.TransportKind]Driver
}

// NewRegistry creates a registry holding drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[devices.TransportKind]Driver, len(drivers))}
	for _, d := range drivers {
		r.Register(d)
	}

	return r
}

// Register adds or replaces the driver for its kind.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[d.Kind()] = d
}

// Driver returns the driver for kind.
func (r *Registry) Driver(kind devices.TransportKind) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[kind]

	return d, ok
}

// Open opens d with the driver registered for its kind. Kinds without a driver
// fail with ErrUnsupported.
func (r *Registry) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	drv, ok := r.Driver(d.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %w", customerrors.ErrUnsupported, customerrors.ErrNoDriverForKind(string(d.Kind)))
	}

	return drv.Open(ctx, d)
}

// withOpenTimeout bounds an open step and maps an elapsed window to ErrTimeout.
func withOpenTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var zero T

		return zero, fmt.Errorf("%w: %w", customerrors.ErrTimeout, err)
	}

	return v, err
}
