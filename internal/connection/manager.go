// Package connection owns the lifecycle of the one open device handle and
// forwards decoded candidates to subscribers.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/decode"
	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/metrics"
	"github.com/bavix/scanbridge/internal/transport"
)

// DefaultFlushInterval is how often idle-framed pipelines are flushed.
const DefaultFlushInterval = 50 * time.Millisecond

const subscriberBuffer = 16

// Opener opens device handles.
type Opener interface {
	Open(ctx context.Context, d *devices.Descriptor) (transport.Handle, error)
}

// Discoverer runs a discovery pass.
type Discoverer interface {
	DiscoverDevices(ctx context.Context) ([]*devices.Descriptor, error)
}

// Event is delivered to subscribers: a candidate, or the error that ended or
// spoiled the reading.
type Event struct {
	Candidate decode.CandidateCode
	Err       error
}

// Manager is the connection state machine.
type Manager struct {
	opener     Opener
	discoverer Discoverer
	decodeOpts decode.Options
	flushEvery time.Duration
	now        func() time.Time

	mu         sync.Mutex
	state      State
	lastErr    error
	known      map[string]*devices.Descriptor
	order      []*devices.Descriptor
	active     *devices.Descriptor
	handle     transport.Handle
	pumpDone   chan struct{}
	cancelOpen context.CancelFunc
	openSeq    uint64
	subs       map[uint64]*Subscription
	nextSub    uint64
	listeners  []func(StateChange)
}

// Option configures a Manager.
type Option func(*Manager)

// WithDecodeOptions sets the pipeline options used for every opened handle.
func WithDecodeOptions(opts decode.Options) Option {
	return func(m *Manager) { m.decodeOpts = opts }
}

// WithFlushInterval sets the pipeline flush cadence.
func WithFlushInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.flushEvery = d
		}
	}
}

// NewManager creates a disconnected manager.
func NewManager(opener Opener, discoverer Discoverer, opts ...Option) *Manager {
	m := &Manager{
		opener:     opener,
		discoverer: discoverer,
		flushEvery: DefaultFlushInterval,
		now:        time.Now,
		state:      Disconnected,
		known:      map[string]*devices.Descriptor{},
		subs:       map[uint64]*Subscription{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OnStateChange registers a transition listener. Listeners run synchronously,
// outside the manager lock.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, fn)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// LastError returns the error of the last failed open or device loss.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastErr
}

// Active returns the connected device, or nil.
func (m *Manager) Active() *devices.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected {
		return nil
	}

	return m.active.Clone()
}

// Devices returns the result of the last discovery pass.
func (m *Manager) Devices() []*devices.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*devices.Descriptor, 0, len(m.order))
	for _, d := range m.order {
		out = append(out, d.Clone())
	}

	return out
}

// Detect runs a discovery pass and replaces the known device set. The manager
// reports Detecting only while no device is open.
func (m *Manager) Detect(ctx context.Context) ([]*devices.Descriptor, error) {
	m.mu.Lock()
	idle := m.state == Disconnected || m.state == Error

	var changes []StateChange
	if idle {
		changes = append(changes, m.setState(Detecting, nil))
	}
	m.mu.Unlock()
	m.notify(ctx, changes...)

	found, err := m.discoverer.DiscoverDevices(ctx)

	m.mu.Lock()
	changes = changes[:0]

	if err == nil {
		m.known = make(map[string]*devices.Descriptor, len(found))
		m.order = make([]*devices.Descriptor, 0, len(found))

		for _, d := range found {
			m.known[d.ID] = d.Clone()
			m.order = append(m.order, d.Clone())
		}
	}

	if idle && m.state == Detecting {
		if err != nil {
			changes = append(changes, m.setState(Error, err))
		} else {
			changes = append(changes, m.setState(Disconnected, nil))
		}
	}
	m.mu.Unlock()
	m.notify(ctx, changes...)

	if err != nil {
		return nil, fmt.Errorf("discover devices: %w", err)
	}

	return m.Devices(), nil
}

// Open connects deviceID, closing any open device first. Opening the connected
// device again is a no-op.
func (m *Manager) Open(ctx context.Context, deviceID string) error {
	log := zerolog.Ctx(ctx)

	m.mu.Lock()

	switch m.state {
	case Connecting:
		m.mu.Unlock()

		return customerrors.ErrConnectInProgress
	case Detecting:
		m.mu.Unlock()

		return customerrors.ErrConnectInProgress
	case Connected:
		if m.active != nil && m.active.ID == deviceID {
			m.mu.Unlock()

			return nil
		}
	}

	_, known := m.known[deviceID]
	m.mu.Unlock()

	if !known {
		if _, err := m.Detect(ctx); err != nil {
			return err
		}
	}

	if m.State() == Connected {
		if err := m.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("closing previous device")
		}
	}

	m.mu.Lock()

	desc, ok := m.known[deviceID]
	if !ok {
		m.mu.Unlock()

		return customerrors.ErrUnknownDeviceWithID(deviceID)
	}

	if m.state == Connecting || m.state == Connected || m.state == Detecting {
		m.mu.Unlock()

		return customerrors.ErrConnectInProgress
	}

	octx, cancel := context.WithCancel(ctx)
	m.openSeq++
	seq := m.openSeq
	m.cancelOpen = cancel
	m.active = desc.Clone()
	changes := []StateChange{m.setState(Connecting, nil)}
	m.mu.Unlock()
	m.notify(ctx, changes...)

	handle, err := m.opener.Open(octx, desc)
	canceled := octx.Err() != nil

	metrics.RecordConnect(string(desc.Kind), err)

	cancel()

	var pipe decode.Pipeline
	if err == nil {
		pipe, err = decode.New(desc.Kind, m.decodeOpts)
		if err != nil {
			_ = handle.Close()
		}
	}

	m.mu.Lock()

	if m.openSeq != seq || m.state != Connecting {
		m.mu.Unlock()

		if err == nil {
			_ = handle.Close()
		}

		return fmt.Errorf("open %s: %w", deviceID, customerrors.ErrNotConnected)
	}

	m.cancelOpen = nil

	if err != nil {
		if canceled && errors.Is(err, context.Canceled) {
			changes = []StateChange{m.setState(Disconnected, nil)}
		} else {
			changes = []StateChange{m.setState(Error, err)}
		}
		m.mu.Unlock()
		m.notify(ctx, changes...)

		log.Warn().Err(err).Str("device", deviceID).Str("transport", string(desc.Kind)).Msg("device open failed")

		return fmt.Errorf("open %s: %w", deviceID, err)
	}

	m.handle = handle
	m.pumpDone = make(chan struct{})
	changes = []StateChange{m.setState(Connected, nil)}

	go m.pump(zerolog.Ctx(ctx).WithContext(context.Background()), handle, pipe, m.pumpDone)

	m.mu.Unlock()
	m.notify(ctx, changes...)

	log.Info().Str("device", deviceID).Str("transport", string(desc.Kind)).Msg("device connected")

	return nil
}

// Close releases the open device and ends every subscription. It is
// idempotent; closing during Connecting abandons the attempt.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()

	var (
		handle transport.Handle
		done   chan struct{}
	)

	switch m.state {
	case Disconnected, Detecting:
		m.mu.Unlock()

		return nil
	case Connecting:
		if m.cancelOpen != nil {
			m.cancelOpen()
			m.cancelOpen = nil
		}
	case Connected:
		handle, done = m.handle, m.pumpDone
	case Error:
	}

	m.handle, m.pumpDone = nil, nil
	m.endSubsLocked()
	changes := []StateChange{m.setState(Disconnected, nil)}
	m.mu.Unlock()

	var err error

	if handle != nil {
		err = handle.Close()
		<-done
	}

	m.notify(ctx, changes...)

	return err
}

// Configure forwards options to the open handle.
func (m *Manager) Configure(ctx context.Context, opts map[string]any) error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil {
		return customerrors.ErrNotConnected
	}

	return h.Configure(ctx, opts)
}

// Arm asks an on-demand handle for one reading. Other handles ignore it.
func (m *Manager) Arm() error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h == nil {
		return customerrors.ErrNotConnected
	}

	if a, ok := h.(transport.Armer); ok {
		a.Arm()
	}

	return nil
}

// Subscribe registers for events from the open device. Events are dropped when
// the subscriber falls behind.
func (m *Manager) Subscribe() (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected {
		return nil, customerrors.ErrNotConnected
	}

	m.nextSub++
	s := &Subscription{id: m.nextSub, m: m, ch: make(chan Event, subscriberBuffer)}
	m.subs[s.id] = s

	return s, nil
}

func (m *Manager) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(s.ch)
	}
}

// deliverLocked fans ev out without blocking. Only a connected device delivers.
func (m *Manager) deliverLocked(ev Event) {
	for _, s := range m.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// endSubsLocked closes every subscription. Events already queued stay readable.
func (m *Manager) endSubsLocked() {
	for id, s := range m.subs {
		delete(m.subs, id)
		close(s.ch)
	}
}

func (m *Manager) pump(ctx context.Context, h transport.Handle, p decode.Pipeline, done chan struct{}) {
	defer close(done)

	log := zerolog.Ctx(ctx)

	ticker := time.NewTicker(m.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case sig := <-h.Signals():
			cands, err := p.Decode(sig)
			m.forward(h, cands, err)
		case now := <-ticker.C:
			m.forward(h, p.Flush(now), nil)
		case <-h.Done():
			err := h.Err()
			if err == nil {
				return
			}

			log.Warn().Err(err).Msg("device lost")

			m.mu.Lock()
			if m.handle != h {
				m.mu.Unlock()

				return
			}

			m.deliverLocked(Event{Err: err})
			m.endSubsLocked()
			m.handle, m.pumpDone = nil, nil
			change := m.setState(Disconnected, err)
			m.mu.Unlock()
			m.notify(ctx, change)

			return
		}
	}
}

func (m *Manager) forward(h transport.Handle, cands []decode.CandidateCode, err error) {
	if len(cands) == 0 && err == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Connected || m.handle != h {
		return
	}

	if err != nil {
		m.deliverLocked(Event{Err: err})
	}

	for _, c := range cands {
		metrics.RecordCandidate(string(c.Source))
		m.deliverLocked(Event{Candidate: c})
	}
}

// setState records a transition. The caller holds mu and notifies after unlocking.
func (m *Manager) setState(to State, err error) StateChange {
	change := StateChange{From: m.state, To: to, Err: err, At: m.now()}
	if m.active != nil {
		change.DeviceID = m.active.ID
	}

	if err != nil {
		change.Error = err.Error()
	}

	m.state = to
	metrics.M.ConnectionState.Set(float64(to))

	switch to {
	case Error:
		m.lastErr = err
	case Disconnected:
		if err != nil {
			m.lastErr = err
		}
	case Connected:
		m.lastErr = nil
	}

	return change
}

func (m *Manager) notify(ctx context.Context, changes ...StateChange) {
	if len(changes) == 0 {
		return
	}

	m.mu.Lock()
	listeners := append([]func(StateChange){}, m.listeners...)
	m.mu.Unlock()

	log := zerolog.Ctx(ctx)

	for _, c := range changes {
		ev := log.Debug()
		if c.Err != nil {
			ev = log.Warn().Err(c.Err)
		}

		ev.Str("from", c.From.String()).Str("to", c.To.String()).Str("device", c.DeviceID).Msg("connection state changed")

		for _, fn := range listeners {
			fn(c)
		}
	}
}

// Subscription receives events until cancelled. Cancel is idempotent and closes C.
type Subscription struct {
	id   uint64
	m    *Manager
	ch   chan Event
	once sync.Once
}

// C returns the event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Cancel removes the subscription.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.m.unsubscribe(s.id) })
}
