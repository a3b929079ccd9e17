package transport

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// Simulated reading defaults.
const (
	DefaultDemoLatency     = 3 * time.Second
	DefaultDemoSuccessRate = 0.8
)

// DemoCandidates is the fixed set a simulated device reads from. Every entry is a
// valid EAN-13.
//
//nolint:gochecknoglobals // fixed sample set
var DemoCandidates = []string{
	"1234567890128",
	"9876543210982",
	"1111222233332",
	"5555666677776",
	"1357924680245",
	"2468013579131",
	"9988776655444",
	"1122334455666",
}

// SimulatedDriver stands in for hardware: each Arm produces one reading after the
// configured latency, successful with the configured rate.
type SimulatedDriver struct {
	latency     time.Duration
	successRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedDriver creates a simulated driver. A nil rnd is seeded from the clock.
func NewSimulatedDriver(latency time.Duration, successRate float64, rnd *rand.Rand) *SimulatedDriver {
	if latency < 0 {
		latency = DefaultDemoLatency
	}

	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)) //nolint:gosec // simulation only
	}

	return &SimulatedDriver{latency: latency, successRate: successRate, rnd: rnd}
}

func (s *SimulatedDriver) Kind() devices.TransportKind { return devices.KindDemo }

func (s *SimulatedDriver) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	candidates := DemoCandidates

	if raw := d.Spec(devices.SpecCandidates); raw != "" {
		var custom []string

		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				custom = append(custom, c)
			}
		}

		if len(custom) > 0 {
			candidates = custom
		}
	}

	return &simulatedHandle{
		baseHandle: newBaseHandle(ctx, devices.KindDemo, nil),
		driver:     s,
		candidates: candidates,
	}, nil
}

// roll reports success and picks a candidate.
func (s *SimulatedDriver) roll(candidates []string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.rnd.Float64() < s.successRate
	pick := candidates[s.rnd.IntN(len(candidates))]

	return pick, ok
}

type simulatedHandle struct {
	*baseHandle

	driver     *SimulatedDriver
	candidates []string

	mu      sync.Mutex
	pending bool
}

// Arm schedules one reading. A second Arm while one is pending is ignored.
func (h *simulatedHandle) Arm() {
	h.mu.Lock()
	if h.pending {
		h.mu.Unlock()

		return
	}

	h.pending = true
	h.mu.Unlock()

	go func() {
		timer := time.NewTimer(h.driver.latency)
		defer timer.Stop()

		select {
		case <-h.ctx.Done():
			return
		case <-timer.C:
		}

		h.mu.Lock()
		h.pending = false
		h.mu.Unlock()

		code, ok := h.driver.roll(h.candidates)
		if !ok {
			h.emit(RawSignal{Err: customerrors.ErrNoRead})

			return
		}

		h.emit(RawSignal{Data: []byte(code)})
	}()
}
