package scanner_test

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/connection"
	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/events"
	"github.com/bavix/scanbridge/internal/host"
	"github.com/bavix/scanbridge/internal/host/hosttest"
	"github.com/bavix/scanbridge/internal/resolver"
	"github.com/bavix/scanbridge/internal/scanner"
	"github.com/bavix/scanbridge/internal/session"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu    sync.Mutex
	types []events.Type
}

func (r *recorder) sink() events.Sink {
	return events.FuncSink{SinkName: "recorder", Fn: func(_ context.Context, ev events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.types = append(r.types, ev.Type)

		return nil
	}}
}

func (r *recorder) has(t events.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Contains(r.types, t)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scanner.DemoLatency = 0
	cfg.Scanner.DemoSuccessRate = 1
	cfg.Transports.Camera.Enabled = false
	cfg.Transports.HID.Enabled = false
	cfg.Transports.Network.Enabled = false

	return cfg
}

func startService(t *testing.T, cfg *config.Config, hosts scanner.Hosts, opts ...scanner.Option) *scanner.Service {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	opts = append(opts, scanner.WithRand(rand.New(rand.NewPCG(1, 2)))) //nolint:gosec // deterministic test rng

	svc, err := scanner.New(ctx, cfg, hosts, opts...)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))

	t.Cleanup(func() {
		cancel()
		_ = svc.Shutdown(context.Background())
	})

	return svc
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")

		return v
	case <-time.After(waitFor):
		require.FailNow(t, "timed out")
	}

	var zero T

	return zero
}

func TestService_ListDevices(t *testing.T) {
	t.Parallel()

	svc := startService(t, testConfig(), scanner.Hosts{})

	list, err := svc.ListDevices(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
	}

	assert.Subset(t, ids, []string{devices.IDKeyboardWedge, devices.IDDemo, devices.IDUSBSimulator, devices.IDAIScanner})
	assert.Len(t, svc.Devices(), len(list))
}

func TestService_DemoScanResolves(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Transports.Demo.Candidates = []string{"1234567890128"}

	rec := &recorder{}
	svc := startService(t, cfg, scanner.Hosts{}, scanner.WithSink(rec.sink()))

	results := make(chan session.ScanResult, 1)
	products := make(chan resolver.ResolvedProduct, 1)

	svc.OnScanResult(func(r session.ScanResult) { results <- r })
	svc.OnResolvedProduct(func(p resolver.ResolvedProduct) { products <- p })

	ctx := context.Background()
	require.NoError(t, svc.Connect(ctx, devices.IDDemo))

	state, active, _ := svc.ConnectionState()
	assert.Equal(t, connection.Connected, state)
	require.NotNil(t, active)
	assert.Equal(t, devices.IDDemo, active.ID)

	ch, err := svc.StartScan(ctx)
	require.NoError(t, err)

	res := receive(t, ch)
	assert.True(t, res.Success)
	assert.Equal(t, "1234567890128", res.Barcode)
	assert.Equal(t, string(devices.KindDemo), res.Method)
	assert.Equal(t, devices.IDDemo, res.DeviceID)
	assert.NotEmpty(t, res.ID)

	assert.Equal(t, res.ID, receive(t, (<-chan session.ScanResult)(results)).ID)

	product := receive(t, (<-chan resolver.ResolvedProduct)(products))
	assert.Equal(t, res.Barcode, product.Code)
	require.NotNil(t, product.Product)
	assert.Equal(t, "Demo Product A", product.Product.Name)
	assert.Equal(t, resolver.MatchExact, product.Match)
	assert.InDelta(t, 1.0, product.Confidence, 0)
	assert.False(t, product.IsGenerated)
	assert.True(t, product.Exact())

	assert.Eventually(t, func() bool {
		s, _, _ := svc.ConnectionState()

		return s == connection.Disconnected
	}, waitFor, 10*time.Millisecond)

	history := svc.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, res.ID, history[0].ID)

	assert.Eventually(t, func() bool {
		return rec.has(events.TypeScanResult) && rec.has(events.TypeResolvedProduct) && rec.has(events.TypeConnectionState)
	}, waitFor, 10*time.Millisecond)
}

func TestService_WedgeScan(t *testing.T) {
	t.Parallel()

	keys := hosttest.NewKeys()
	svc := startService(t, testConfig(), scanner.Hosts{Keys: keys})

	products := make(chan resolver.ResolvedProduct, 1)
	svc.OnResolvedProduct(func(p resolver.ResolvedProduct) { products <- p })

	ctx := context.Background()
	require.NoError(t, svc.Connect(ctx, devices.IDKeyboardWedge))
	require.Eventually(t, keys.Listening, waitFor, 5*time.Millisecond)

	ch, err := svc.StartScan(ctx)
	require.NoError(t, err)

	for _, r := range "4006381333931" {
		require.True(t, keys.Send(host.Keystroke{Key: string(r), At: time.Now()}))
	}

	require.True(t, keys.Send(host.Keystroke{Key: host.Enter, At: time.Now()}))

	res := receive(t, ch)
	assert.True(t, res.Success)
	assert.Equal(t, "4006381333931", res.Barcode)
	assert.Equal(t, string(devices.KindKeyboardWedge), res.Method)

	product := receive(t, (<-chan resolver.ResolvedProduct)(products))
	assert.Equal(t, resolver.MatchGenerated, product.Match)
	assert.True(t, product.IsGenerated)
	assert.Zero(t, product.Confidence)
}

func TestService_Errors(t *testing.T) {
	t.Parallel()

	svc := startService(t, testConfig(), scanner.Hosts{})
	ctx := context.Background()

	_, err := svc.StartScan(ctx)
	require.ErrorIs(t, err, customerrors.ErrNotConnected)

	err = svc.Connect(ctx, devices.IDAIScanner)
	require.ErrorIs(t, err, customerrors.ErrUnsupported)

	err = svc.Connect(ctx, "missing")
	require.ErrorIs(t, err, customerrors.ErrUnknownDevice)

	require.NoError(t, svc.Disconnect(ctx))

	require.ErrorIs(t, svc.Start(ctx), customerrors.ErrAlreadyActive)
}

func TestService_StopScan(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scanner.DemoLatency = time.Hour

	svc := startService(t, cfg, scanner.Hosts{})
	ctx := context.Background()

	require.NoError(t, svc.Connect(ctx, devices.IDUSBSimulator))

	ch, err := svc.StartScan(ctx)
	require.NoError(t, err)
	assert.True(t, svc.Scanning())

	_, err = svc.StartScan(ctx)
	require.ErrorIs(t, err, customerrors.ErrAlreadyActive)

	svc.StopScan()

	_, open := <-ch
	assert.False(t, open)
	assert.False(t, svc.Scanning())
	assert.Empty(t, svc.History(0))
}

func TestService_ResolveAndInfo(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Resolver.NotFoundPolicy = config.PolicyNotFound

	svc := startService(t, cfg, scanner.Hosts{})
	ctx := context.Background()

	p, err := svc.Resolve(ctx, "6291018051234")
	require.NoError(t, err)
	assert.True(t, p.Exact())
	assert.Equal(t, "Blue Band Margarine 500g", p.Product.Name)

	_, err = svc.Resolve(ctx, "4006381333931")
	require.ErrorIs(t, err, customerrors.ErrProductNotFound)

	v := svc.Validate("4006381333931")
	assert.True(t, v.IsValid)

	info := svc.Info()
	assert.Equal(t, "scanbridge", info.App)
	assert.Equal(t, connection.Disconnected.String(), info.State)
	assert.Equal(t, svc.Catalog().Len(), info.Products)
	assert.Equal(t, 1, info.CachedLookups)
	assert.Contains(t, info.Sinks, "websocket")
	assert.Empty(t, info.RemoteBreaker)
}
