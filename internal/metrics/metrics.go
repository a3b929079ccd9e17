//nolint:gochecknoglobals // prometheus metrics and global state
package metrics

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const defaultService = "scanbridge"

var (
	ScanResultsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "scan_results_total",
			Help: "Terminal scan results (Counter). outcome=success|failure.",
		},
		[]string{"service", "method", "outcome"},
	)
	ScanCandidatesTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "scan_candidates_total",
			Help: "Candidate codes produced by decode pipelines (Counter).",
		},
		[]string{"service", "transport"},
	)
	DeviceConnectTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "device_connect_total",
			Help: "Device open attempts by outcome (Counter). outcome=success|error.",
		},
		[]string{"service", "transport", "outcome"},
	)
	ProductResolutionsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "product_resolutions_total",
			Help: "Product resolutions by match kind (Counter). match=exact|remote|fuzzy|generated|not_found.",
		},
		[]string{"service", "match"},
	)
	AdminRequestsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "http_server_requests_total",
			Help: "Admin HTTP requests handled (Counter). Labels: service, method, route, status.",
		},
		[]string{"service", "method", "route", "status"},
	)
	EventSinkErrorsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "event_sink_errors_total",
			Help: "Failed event deliveries per sink (Counter).",
		},
		[]string{"service", "sink"},
	)

	ConnectionStateGauge = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "connection_state",
			Help: "Connection state: 0=disconnected 1=detecting 2=connecting 3=connected 4=error (Gauge).",
		},
		[]string{"service"},
	)
	ReadyGauge = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "service_ready",
			Help: "Service readiness: 1=ready, 0=not ready (Gauge).",
		},
		[]string{"service"},
	)

	ScanDuration = promauto.NewHistogramVec(prom.HistogramOpts{
		Name:    "scan_duration_seconds",
		Help:    "Time from scan start to terminal result in seconds (Histogram).",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
	}, []string{"service", "method"})
	ResolveDuration = promauto.NewHistogramVec(prom.HistogramOpts{
		Name:    "product_resolve_duration_seconds",
		Help:    "Product resolution duration in seconds (Histogram).",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 3.0},
	}, []string{"service"})

	CacheHitsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "resolver_cache_hits_total",
			Help: "Total resolver cache hits.",
		},
		[]string{"service"},
	)
	CacheMissesTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "resolver_cache_misses_total",
			Help: "Total resolver cache misses.",
		},
		[]string{"service"},
	)
	CacheEntries = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "resolver_cache_entries",
			Help: "Current number of resolver cache entries.",
		},
		[]string{"service"},
	)
)

var readyFlag int32 //nolint:gochecknoglobals // service ready flag

var serviceName atomic.Value //nolint:gochecknoglobals // service name // string

// SetService sets the service label value (default: scanbridge).
func SetService(name string) { serviceName.Store(name) }

func Service() string {
	if v := serviceName.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	return defaultService
}

// RegisterCollectors registers default Go and process collectors.
// Should be called once during program startup (e.g., in cmd).
func RegisterCollectors() {
	registerDefault(collectors.NewGoCollector())
	registerDefault(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func registerDefault(c prom.Collector) {
	if err := prom.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			return
		}
	}
}

var M struct { //nolint:gochecknoglobals // metrics cache
	ConnectionState prom.Gauge
	ResolveDuration prom.Observer

	CacheHits    prom.Counter
	CacheMisses  prom.Counter
	CacheEntries prom.Gauge
}

func init() { BindService() } //nolint:gochecknoinits // M must be usable before cmd rebinds it

// BindService resolves the per-service children of the unlabeled vectors.
func BindService() {
	s := Service()
	M.ConnectionState = ConnectionStateGauge.WithLabelValues(s)
	M.ResolveDuration = ResolveDuration.WithLabelValues(s)

	M.CacheHits = CacheHitsTotal.WithLabelValues(s)
	M.CacheMisses = CacheMissesTotal.WithLabelValues(s)
	M.CacheEntries = CacheEntries.WithLabelValues(s)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}

	return v
}

// RecordScanResult counts a terminal result and its duration.
func RecordScanResult(method string, success bool, took time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
		recordScan()
	}

	method = orUnknown(method)
	ScanResultsTotal.WithLabelValues(Service(), method, outcome).Inc()
	ScanDuration.WithLabelValues(Service(), method).Observe(took.Seconds())
}

// RecordCandidate counts a decoded candidate for transport.
func RecordCandidate(transport string) {
	ScanCandidatesTotal.WithLabelValues(Service(), orUnknown(transport)).Inc()
}

// RecordConnect counts a device open attempt.
func RecordConnect(transport string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	DeviceConnectTotal.WithLabelValues(Service(), orUnknown(transport), outcome).Inc()
}

// RecordResolution counts a product resolution by match kind.
func RecordResolution(match string) {
	ProductResolutionsTotal.WithLabelValues(Service(), orUnknown(match)).Inc()
}

// IncSinkError counts a failed event delivery.
func IncSinkError(sink string) {
	EventSinkErrorsTotal.WithLabelValues(Service(), orUnknown(sink)).Inc()
}

// Simple in-memory successful-scan ring (per process), one bucket per second.
const scanWindow = 60

var (
	scanBuckets [scanWindow]uint64
	scanIndex   int64 // atomic
	scanTickSet int32
)

// StartScanRateTicker starts a background ticker that advances the ring each second.
func StartScanRateTicker() {
	if !atomic.CompareAndSwapInt32(&scanTickSet, 0, 1) {
		return
	}

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()

		for range t.C {
			i := int(atomic.AddInt64(&scanIndex, 1) % scanWindow)
			atomic.StoreUint64(&scanBuckets[i], 0)
		}
	}()
}

func recordScan() {
	i := int(atomic.LoadInt64(&scanIndex) % scanWindow)
	atomic.AddUint64(&scanBuckets[i], 1)
}

func snapshotScans() uint64 {
	var n uint64
	for i := range scanWindow {
		n += atomic.LoadUint64(&scanBuckets[i])
	}

	return n
}

// RecordHTTP increments admin HTTP requests with OTEL-style labels.
func RecordHTTP(method, route string, status int) {
	AdminRequestsTotal.WithLabelValues(Service(), method, route, strconv.Itoa(status)).Inc()
}

// SetReady sets readiness and updates the gauge.
func SetReady(v bool) {
	if v {
		atomic.StoreInt32(&readyFlag, 1)
		ReadyGauge.WithLabelValues(Service()).Set(1)
	} else {
		atomic.StoreInt32(&readyFlag, 0)
		ReadyGauge.WithLabelValues(Service()).Set(0)
	}
}

// IsReady returns current readiness flag.
func IsReady() bool { return atomic.LoadInt32(&readyFlag) == 1 }

// Stats represents a lightweight analytics snapshot for the admin UI.
type Stats struct {
	ScansTotal         float64            `json:"scans_total"`
	ScansSucceeded     float64            `json:"scans_succeeded"`
	ScanSuccessRate    float64            `json:"scan_success_rate"`
	ScanAvgSeconds     float64            `json:"scan_avg_seconds"`
	ScansPerMinute     float64            `json:"scans_per_minute"`
	CandidatesTotal    float64            `json:"candidates_total"`
	ConnectErrorsTotal float64            `json:"connect_errors_total"`
	ResolutionsTotal   float64            `json:"resolutions_total"`
	ResolveAvgSeconds  float64            `json:"resolve_avg_seconds"`
	CacheHitRate       float64            `json:"cache_hit_rate"`
	SinkErrorsTotal    float64            `json:"sink_errors_total"`
	ConnectionState    float64            `json:"connection_state"`
	ServiceReady       float64            `json:"service_ready"`
	ResolutionsByMatch map[string]float64 `json:"resolutions_by_match"`
}

// GatherStats collects basic stats from the default registry for a given service label.
//
//nolint:gocyclo // Complex metric gathering logic with many conditional branches
func GatherStats(service string) (Stats, error) { //nolint:gocognit,cyclop,funlen
	mfs, err := prom.DefaultGatherer.Gather()
	if err != nil {
		return Stats{}, err
	}

	var (
		s                                    Stats
		scanSum, scanCount, resSum, resCount float64
		cacheHits, cacheMisses               float64
	)

	s.ResolutionsByMatch = map[string]float64{}

	withService := func(m *dto.Metric) bool {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "service" && lp.GetValue() == service {
				return true
			}
		}

		return false
	}

	label := func(m *dto.Metric, name string) string {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name {
				return lp.GetValue()
			}
		}

		return ""
	}

	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if !withService(m) {
				continue
			}

			switch mf.GetName() {
			case "scan_results_total":
				v := m.GetCounter().GetValue()
				s.ScansTotal += v

				if label(m, "outcome") == "success" {
					s.ScansSucceeded += v
				}
			case "scan_candidates_total":
				s.CandidatesTotal += m.GetCounter().GetValue()
			case "device_connect_total":
				if label(m, "outcome") == "error" {
					s.ConnectErrorsTotal += m.GetCounter().GetValue()
				}
			case "product_resolutions_total":
				v := m.GetCounter().GetValue()
				s.ResolutionsTotal += v
				s.ResolutionsByMatch[label(m, "match")] += v
			case "event_sink_errors_total":
				s.SinkErrorsTotal += m.GetCounter().GetValue()
			case "scan_duration_seconds":
				h := m.GetHistogram()
				scanSum += h.GetSampleSum()
				scanCount += float64(h.GetSampleCount())
			case "product_resolve_duration_seconds":
				h := m.GetHistogram()
				resSum += h.GetSampleSum()
				resCount += float64(h.GetSampleCount())
			case "resolver_cache_hits_total":
				cacheHits += m.GetCounter().GetValue()
			case "resolver_cache_misses_total":
				cacheMisses += m.GetCounter().GetValue()
			case "connection_state":
				s.ConnectionState = m.GetGauge().GetValue()
			case "service_ready":
				s.ServiceReady = m.GetGauge().GetValue()
			}
		}
	}

	if s.ScansTotal > 0 {
		s.ScanSuccessRate = s.ScansSucceeded / s.ScansTotal
	}

	if scanCount > 0 {
		s.ScanAvgSeconds = scanSum / scanCount
	}

	if resCount > 0 {
		s.ResolveAvgSeconds = resSum / resCount
	}

	if total := cacheHits + cacheMisses; total > 0 {
		s.CacheHitRate = cacheHits / total
	}

	s.ScansPerMinute = float64(snapshotScans())

	return s, nil
}
