// Package scanner assembles discovery, transports, the connection manager, the
// scan session, product resolution and event fan-out into one service.
package scanner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/catalog"
	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/connection"
	"github.com/bavix/scanbridge/internal/decode"
	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/events"
	"github.com/bavix/scanbridge/internal/metrics"
	"github.com/bavix/scanbridge/internal/resolver"
	"github.com/bavix/scanbridge/internal/session"
	"github.com/bavix/scanbridge/internal/symbology"
	"github.com/bavix/scanbridge/internal/transport"
)

const (
	resolveTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Option tunes a Service.
type Option func(*options)

type options struct {
	rnd   *rand.Rand
	sinks []events.Sink
}

// WithRand seeds the simulated devices and the heuristic camera detector.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

// WithSink adds an event sink next to the log and websocket sinks.
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// Service is the upward API: list devices, connect, scan, and observe results.
type Service struct {
	cfg      *config.Config
	sources  *devices.SourceManager
	registry *transport.Registry
	conn     *connection.Manager
	session  *session.Session
	catalog  *catalog.Catalog
	watcher  *catalog.Watcher
	cache    *resolver.CachedResolver
	resolver resolver.Resolver
	remote   *resolver.HTTPRemote
	hub      *events.Hub
	ws       *events.Broadcaster
	mqtt     *events.MQTTSink

	mu        sync.Mutex
	ctx       context.Context //nolint:containedctx // lifetime of Start, used by background resolves
	started   bool
	onResult  []func(session.ScanResult)
	onProduct []func(resolver.ResolvedProduct)
	resolves  sync.WaitGroup
	hubDone   chan struct{}
	ready     atomic.Bool
}

// New builds a service over hosts. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, hosts Hosts, opts ...Option) (*Service, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		cfg:      cfg,
		sources:  newSourceManager(cfg, hosts),
		registry: newRegistry(cfg, hosts, o.rnd),
		hub:      events.NewHub(0),
		ws:       events.NewBroadcaster(),
		ctx:      context.WithoutCancel(ctx),
	}

	s.conn = connection.NewManager(s.registry, s.sources, connection.WithDecodeOptions(decodeOptions(cfg, o.rnd)))
	s.session = session.New(s.conn, session.Options{
		Timeout:        cfg.Scanner.ScanTimeout,
		KeepConnection: cfg.Scanner.KeepConnection,
		HistorySize:    cfg.Scanner.HistorySize,
	})

	if err := s.buildResolver(ctx); err != nil {
		return nil, err
	}

	s.hub.Add(events.NewLogSink(*zerolog.Ctx(ctx)))
	s.hub.Add(s.ws)

	for _, sink := range o.sinks {
		s.hub.Add(sink)
	}

	s.conn.OnStateChange(s.handleStateChange)
	s.session.OnResult(s.handleResult)

	return s, nil
}

func newSourceManager(cfg *config.Config, hosts Hosts) *devices.SourceManager {
	t := cfg.Transports
	sm := devices.NewSourceManager()

	if t.Camera.Enabled {
		sm.AddStrategy(devices.NewCameraStrategy(hosts.Capture))
	}

	if t.HID.Enabled {
		vendors := make([]uint16, 0, len(t.HID.VendorIDs))
		for _, v := range t.HID.VendorIDs {
			vendors = append(vendors, uint16(v)) //nolint:gosec // validated to fit 16 bits
		}

		sm.AddStrategy(devices.NewHIDStrategy(hosts.HID, vendors...))
	}

	if t.Serial.Enabled {
		sm.AddStrategy(devices.NewSerialStrategy(hosts.Serial, t.Serial.Ports, t.Serial.BaudRate))
	}

	if t.Bluetooth.Enabled {
		sm.AddStrategy(devices.NewBluetoothStrategy(hosts.BLE, t.Bluetooth.DiscoveryTimeout))
	}

	if t.Network.Enabled {
		scanners := make([]devices.NetworkScanner, 0, len(t.Network.Scanners))
		for _, sc := range t.Network.Scanners {
			scanners = append(scanners, devices.NetworkScanner{Name: sc.Name, Address: sc.Address})
		}

		sm.AddStrategy(devices.NewNetworkStrategy(scanners, hosts.Browser))
	}

	sm.AddStrategy(devices.NewBuiltinStrategy(t.KeyboardWedge.Enabled, t.Demo.Enabled, t.Demo.Candidates...))
	sm.AddDecorator(devices.NewDefaultValueDecorator())

	return sm
}

func newRegistry(cfg *config.Config, hosts Hosts, rnd *rand.Rand) *transport.Registry {
	t := cfg.Transports
	r := transport.NewRegistry()

	if t.Camera.Enabled {
		r.Register(transport.NewCameraDriver(hosts.Capture, t.Camera.OpenTimeout))
	}

	if t.HID.Enabled {
		r.Register(transport.NewHIDDriver(hosts.HID))
	}

	if t.Serial.Enabled {
		r.Register(transport.NewSerialDriver(hosts.Serial))
	}

	if t.Bluetooth.Enabled {
		r.Register(transport.NewBluetoothDriver(hosts.BLE, 0))
	}

	if t.Network.Enabled {
		r.Register(transport.NewNetworkDriver(nil, nil, t.Network.OpenTimeout))
	}

	if t.KeyboardWedge.Enabled {
		r.Register(transport.NewWedgeDriver(hosts.Keys))
	}

	if t.Demo.Enabled {
		r.Register(transport.NewSimulatedDriver(cfg.Scanner.DemoLatency, cfg.Scanner.DemoSuccessRate, rnd))
	}

	return r
}

func decodeOptions(cfg *config.Config, rnd *rand.Rand) decode.Options {
	var detector decode.Detector = decode.NewHeuristicDetector(rnd)
	if cfg.Transports.Camera.Detector == config.DetectorZXing {
		detector = decode.NewZXingDetector()
	}

	return decode.Options{
		SampleEveryNFrames: cfg.Scanner.SampleEveryNFrames,
		WedgeTimeout:       cfg.Scanner.WedgeTimeout(),
		MinBarcodeLength:   cfg.Scanner.MinBarcodeLength,
		MaxBarcodeLength:   cfg.Scanner.MaxBarcodeLength,
		HIDIdleFlush:       cfg.Transports.HID.IdleFlush,
		Detector:           detector,
	}
}

func (s *Service) buildResolver(ctx context.Context) error {
	rc := s.cfg.Resolver

	products, err := catalog.Load(rc.CatalogFile)
	if err != nil {
		return err
	}

	s.catalog = catalog.New(products...)

	policy, err := resolver.ParsePolicy(rc.NotFoundPolicy)
	if err != nil {
		return err
	}

	ropts := resolver.Options{
		Threshold: s.cfg.Scanner.FuzzyMatchThreshold,
		Policy:    policy,
	}

	if rc.Remote.URL != "" {
		s.remote, err = resolver.NewHTTPRemote(rc.Remote.URL, nil, resolver.BreakerConfig{
			MaxFailures: rc.Remote.Breaker.MaxFailures,
			Timeout:     rc.Remote.Breaker.Timeout,
		}, *zerolog.Ctx(ctx))
		if err != nil {
			return err
		}

		ropts.Remote = s.remote
	}

	s.cache = resolver.NewCachedResolver(resolver.New(s.catalog, ropts), rc.Cache.MaxEntries, rc.Cache.TTL)
	s.resolver = &resolver.MetricsResolver{Next: s.cache}

	if rc.CatalogFile != "" && rc.WatchCatalog {
		s.watcher, err = catalog.NewWatcher(s.catalog, rc.CatalogFile)
		if err != nil {
			return err
		}

		s.watcher.OnReload(s.cache.Purge)
	}

	return nil
}

// Start runs the event hub, the catalog watcher and the optional MQTT sink
// until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()

		return customerrors.ErrAlreadyActive
	}

	s.started = true
	s.ctx = context.WithoutCancel(ctx)
	s.hubDone = make(chan struct{})
	s.mu.Unlock()

	if s.cfg.MQTT.Enabled {
		sink, err := events.ConnectMQTT(ctx, events.MQTTConfig{
			Broker:      s.cfg.MQTT.Broker,
			ClientID:    s.cfg.MQTT.ClientID,
			Username:    s.cfg.MQTT.Username,
			Password:    s.cfg.MQTT.Password,
			TopicPrefix: s.cfg.MQTT.TopicPrefix,
			QoS:         s.cfg.MQTT.QoS,
		})
		if err != nil {
			return err
		}

		s.mqtt = sink
		s.hub.Add(sink)
		log.Info().Str("broker", s.cfg.MQTT.Broker).Msg("mqtt sink connected")
	}

	if s.watcher != nil {
		if err := s.watcher.Watch(ctx); err != nil {
			return err
		}
	}

	go func() {
		defer close(s.hubDone)

		s.hub.Run(ctx)
	}()

	metrics.StartScanRateTicker()
	metrics.SetReady(true)
	s.ready.Store(true)

	log.Info().
		Int("products", s.catalog.Len()).
		Strs("sinks", s.hub.Sinks()).
		Msg("scanner service started")

	return nil
}

// Shutdown stops the running scan, releases the device and disconnects the sinks.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	metrics.SetReady(false)

	s.session.Stop()

	err := s.conn.Close(ctx)

	s.resolves.Wait()

	if s.mqtt != nil {
		s.mqtt.Close()
	}

	s.mu.Lock()
	done := s.hubDone
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		case <-time.After(shutdownTimeout):
		}
	}

	return err
}

// Ready reports whether Start completed and Shutdown has not begun.
func (s *Service) Ready() bool { return s.ready.Load() }

// ListDevices runs a discovery pass.
func (s *Service) ListDevices(ctx context.Context) ([]*devices.Descriptor, error) {
	return s.conn.Detect(ctx)
}

// Devices returns the last discovery result without probing.
func (s *Service) Devices() []*devices.Descriptor { return s.conn.Devices() }

// Connect opens deviceID, replacing any open device.
func (s *Service) Connect(ctx context.Context, deviceID string) error {
	if active := s.conn.Active(); active == nil || active.ID != deviceID {
		s.session.Stop()
	}

	return s.conn.Open(ctx, deviceID)
}

// Disconnect stops any running scan and closes the device.
func (s *Service) Disconnect(ctx context.Context) error {
	s.session.Stop()

	return s.conn.Close(ctx)
}

// ConnectionState reports the manager state, the open device and the last error.
func (s *Service) ConnectionState() (connection.State, *devices.Descriptor, error) {
	return s.conn.State(), s.conn.Active(), s.conn.LastError()
}

// StartScan begins a scan on the connected device. The attempt outlives ctx;
// end it with StopScan.
func (s *Service) StartScan(ctx context.Context) (<-chan session.ScanResult, error) {
	return s.session.Start(context.WithoutCancel(ctx))
}

// StopScan ends the running scan without a result.
func (s *Service) StopScan() { s.session.Stop() }

// Scanning reports whether an attempt is running.
func (s *Service) Scanning() bool { return s.session.Active() }

// History returns up to limit results, newest first. limit <= 0 returns all.
func (s *Service) History(limit int) []session.ScanResult { return s.session.History().List(limit) }

// OnScanResult registers a callback for every terminal scan result.
func (s *Service) OnScanResult(fn func(session.ScanResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onResult = append(s.onResult, fn)
}

// OnResolvedProduct registers a callback for every product resolved from a successful scan.
func (s *Service) OnResolvedProduct(fn func(resolver.ResolvedProduct)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onProduct = append(s.onProduct, fn)
}

// Validate checks code against the supported symbologies.
func (s *Service) Validate(code string) symbology.ValidationResult { return symbology.Validate(code) }

// Resolve maps code to a product.
func (s *Service) Resolve(ctx context.Context, code string) (resolver.ResolvedProduct, error) {
	return s.resolver.Resolve(ctx, code)
}

// Catalog returns the local product table.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Broadcaster is the websocket sink the HTTP layer attaches connections to.
func (s *Service) Broadcaster() *events.Broadcaster { return s.ws }

// Info summarises the running service.
type Info struct {
	App            string   `json:"app"`
	State          string   `json:"state"`
	ActiveDevice   string   `json:"active_device,omitempty"`
	Scanning       bool     `json:"scanning"`
	Products       int      `json:"products"`
	CatalogVersion uint64   `json:"catalog_version"`
	CachedLookups  int      `json:"cached_lookups"`
	RemoteBreaker  string   `json:"remote_breaker,omitempty"`
	Sinks          []string `json:"sinks"`
	Strategies     []string `json:"strategies"`
}

// Info returns the current service summary.
func (s *Service) Info() Info {
	info := Info{
		App:            s.cfg.AppName,
		State:          s.conn.State().String(),
		Scanning:       s.session.Active(),
		Products:       s.catalog.Len(),
		CatalogVersion: s.catalog.Version(),
		CachedLookups:  s.cache.Len(),
		Sinks:          s.hub.Sinks(),
		Strategies:     s.sources.Strategies(),
	}

	if d := s.conn.Active(); d != nil {
		info.ActiveDevice = d.ID
	}

	if s.remote != nil {
		info.RemoteBreaker = s.remote.State().String()
	}

	return info
}

// publish queues an event for the sinks, logging when the hub is saturated.
func (s *Service) publish(t events.Type, data any) {
	if s.hub.Publish(t, data) {
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	zerolog.Ctx(ctx).Warn().Str("type", string(t)).Uint64("dropped", s.hub.Dropped()).Msg("event queue full, event dropped")
}

func (s *Service) handleStateChange(ch connection.StateChange) {
	s.publish(events.TypeConnectionState, ch)
}

func (s *Service) handleResult(res session.ScanResult) {
	s.publish(events.TypeScanResult, res)

	s.mu.Lock()
	listeners := append([]func(session.ScanResult){}, s.onResult...)
	ctx := s.ctx
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}

	if !res.Success {
		return
	}

	s.resolves.Add(1)

	go func() {
		defer s.resolves.Done()

		s.autoResolve(ctx, res)
	}()
}

func (s *Service) autoResolve(ctx context.Context, res session.ScanResult) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	product, err := s.resolver.Resolve(ctx, res.Barcode)
	if err != nil && !errors.Is(err, customerrors.ErrProductNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("scan_id", res.ID).Str("code", res.Barcode).Msg("product resolution failed")

		return
	}

	s.publish(events.TypeResolvedProduct, product)

	s.mu.Lock()
	listeners := append([]func(resolver.ResolvedProduct){}, s.onProduct...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(product)
	}
}
