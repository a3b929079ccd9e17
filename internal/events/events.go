// Package events fans scan, product and connection events out to sinks.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/metrics"
)

const (
	defaultQueueSize = 256
	hubName          = "hub"
)

// Type names an event.
type Type string

// Event types.
const (
	TypeScanResult      Type = "scan_result"
	TypeResolvedProduct Type = "resolved_product"
	TypeConnectionState Type = "connection_state"
)

// Event is one message delivered to every sink.
type Event struct {
	Type Type      `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// Sink receives events. Publish should honor ctx.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Hub queues events and delivers them to sinks in order from a single goroutine.
type Hub struct {
	mu      sync.RWMutex
	sinks   []Sink
	queue   chan Event
	now     func() time.Time
	dropped atomic.Uint64
}

// NewHub returns a hub with a queue of size events; zero means a default size.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Hub{queue: make(chan Event, size), now: time.Now}
}

// Add registers a sink.
func (h *Hub) Add(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sinks = append(h.sinks, s)
}

// Sinks returns the registered sink names.
func (h *Hub) Sinks() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.sinks))
	for _, s := range h.sinks {
		out = append(out, s.Name())
	}

	return out
}

// Publish enqueues an event. It never blocks; it reports false when the queue
// is full and the event was dropped.
func (h *Hub) Publish(t Type, data any) bool {
	ev := Event{Type: t, Data: data, At: h.now()}

	select {
	case h.queue <- ev:
		return true
	default:
		h.dropped.Add(1)
		metrics.IncSinkError(hubName)

		return false
	}
}

// Dropped returns how many events Publish discarded.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Run delivers queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log := zerolog.Ctx(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.queue:
			h.deliver(ctx, log, ev)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, log *zerolog.Logger, ev Event) {
	h.mu.RLock()
	sinks := append([]Sink{}, h.sinks...)
	h.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			metrics.IncSinkError(s.Name())
			log.Warn().Err(err).Str("sink", s.Name()).Str("type", string(ev.Type)).Msg("event delivery failed")
		}
	}
}

// LogSink writes every event to a logger.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink logging at debug level to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	s.log.Debug().Str("type", string(ev.Type)).Interface("data", ev.Data).Time("at", ev.At).Msg("event")

	return nil
}

// FuncSink adapts a function to Sink.
type FuncSink struct {
	SinkName string
	Fn       func(ctx context.Context, ev Event) error
}

func (s FuncSink) Name() string { return s.SinkName }

func (s FuncSink) Publish(ctx context.Context, ev Event) error { return s.Fn(ctx, ev) }
