// Package session runs single-flight scan attempts over the connected device.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/connection"
	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/metrics"
	"github.com/bavix/scanbridge/internal/symbology"
)

// MessageNoRead is the error text of a simulated misread.
const MessageNoRead = "Could not read barcode. Please try again."

// ScanResult is the terminal outcome of one attempt.
type ScanResult struct {
	ID        string           `json:"id"`
	Barcode   string           `json:"barcode"`
	Success   bool             `json:"success"`
	Timestamp time.Time        `json:"timestamp"`
	DeviceID  string           `json:"device_id"`
	Method    string           `json:"method"`
	Format    symbology.Format `json:"format,omitempty"`
	Error     string           `json:"error,omitempty"`

	// Err is the sentinel behind Error.
	Err error `json:"-"`
}

// Connection is what a session needs from the connection manager.
type Connection interface {
	Subscribe() (*connection.Subscription, error)
	Arm() error
	Active() *devices.Descriptor
	Close(ctx context.Context) error
}

// Options tunes a session.
type Options struct {
	// Timeout fails an attempt with ErrTimeout; zero waits indefinitely.
	Timeout time.Duration
	// KeepConnection leaves the device open when an attempt ends.
	KeepConnection bool
	HistorySize    int
}

// Session allows one active attempt at a time and records every terminal result.
type Session struct {
	conn    Connection
	opts    Options
	history *History
	now     func() time.Time

	mu        sync.Mutex
	active    bool
	cancel    context.CancelFunc
	done      chan struct{}
	last      time.Time
	entropy   *ulid.MonotonicEntropy
	listeners []func(ScanResult)
}

// New creates a session over conn.
func New(conn Connection, opts Options) *Session {
	return &Session{
		conn:    conn,
		opts:    opts,
		history: NewHistory(opts.HistorySize),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// OnResult registers a listener called with every terminal result.
func (s *Session) OnResult(fn func(ScanResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// History returns the result ring.
func (s *Session) History() *History { return s.history }

// Active reports whether an attempt is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Start begins an attempt. The returned channel yields exactly one result, or is
// closed without one when the attempt is stopped.
func (s *Session) Start(ctx context.Context) (<-chan ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil, customerrors.ErrAlreadyActive
	}

	sub, err := s.conn.Subscribe()
	if err != nil {
		return nil, err
	}

	device := s.conn.Active()

	if err := s.conn.Arm(); err != nil {
		sub.Cancel()

		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.active = true
	s.cancel = cancel
	s.done = make(chan struct{})

	out := make(chan ScanResult, 1)

	go s.run(runCtx, sub, device, out, s.done)

	zerolog.Ctx(ctx).Debug().Str("device", deviceID(device)).Msg("scan started")

	return out, nil
}

// Stop cancels the running attempt and waits until the device is released.
// No result is emitted. Stopping an idle session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *Session) run(ctx context.Context, sub *connection.Subscription, device *devices.Descriptor, out chan<- ScanResult, done chan struct{}) {
	log := zerolog.Ctx(ctx)
	started := time.Now()

	defer func() {
		s.mu.Lock()
		s.active = false
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()

		close(out)
		close(done)
	}()

	var timeout <-chan time.Time

	if s.opts.Timeout > 0 {
		t := time.NewTimer(s.opts.Timeout)
		defer t.Stop()

		timeout = t.C
	}

	var (
		res ScanResult
		ok  bool
	)

	select {
	case <-ctx.Done():
	case <-timeout:
		res, ok = s.failed(device, customerrors.ErrTimeout), true
	case ev, open := <-sub.C():
		if open {
			res, ok = s.fromEvent(device, ev), true
		}
	}

	sub.Cancel()
	s.release(log, device)

	if !ok {
		log.Debug().Str("device", deviceID(device)).Msg("scan stopped")

		return
	}

	s.history.Add(res)
	metrics.RecordScanResult(res.Method, res.Success, time.Since(started))

	log.Info().
		Str("id", res.ID).
		Str("device", res.DeviceID).
		Str("method", res.Method).
		Bool("success", res.Success).
		Str("barcode", res.Barcode).
		Str("error", res.Error).
		Msg("scan completed")

	s.mu.Lock()
	listeners := append([]func(ScanResult){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}

	out <- res
}

// release closes the device on every exit path unless the session keeps it.
func (s *Session) release(log *zerolog.Logger, device *devices.Descriptor) {
	if s.opts.KeepConnection {
		return
	}

	if err := s.conn.Close(context.Background()); err != nil {
		log.Warn().Err(err).Str("device", deviceID(device)).Msg("device release failed")
	}
}

func (s *Session) fromEvent(device *devices.Descriptor, ev connection.Event) ScanResult {
	if ev.Err != nil {
		return s.failed(device, ev.Err)
	}

	res := s.stamp(device, string(ev.Candidate.Source))
	res.Barcode = ev.Candidate.Text

	v := symbology.Validate(ev.Candidate.Text)
	res.Format = v.Format
	res.Success = v.IsValid

	if !v.IsValid {
		res.Error = v.Error
		res.Err = v.Err
	}

	return res
}

func (s *Session) failed(device *devices.Descriptor, err error) ScanResult {
	method := ""
	if device != nil {
		method = string(device.Kind)
	}

	res := s.stamp(device, method)
	res.Err = err
	res.Error = errorMessage(err)

	return res
}

// stamp assigns a unique id and a timestamp no earlier than the previous one.
func (s *Session) stamp(device *devices.Descriptor, method string) ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	if ts.Before(s.last) {
		ts = s.last
	}

	s.last = ts

	return ScanResult{
		ID:        ulid.MustNew(ulid.Timestamp(ts), s.entropy).String(),
		Timestamp: ts,
		DeviceID:  deviceID(device),
		Method:    method,
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, customerrors.ErrNoRead):
		return MessageNoRead
	case errors.Is(err, customerrors.ErrTimeout):
		return "No barcode read before the scan timeout"
	case errors.Is(err, customerrors.ErrConnectionLost):
		return "Connection to the scanner was lost"
	default:
		return err.Error()
	}
}

func deviceID(d *devices.Descriptor) string {
	if d == nil {
		return ""
	}

	return d.ID
}
