package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	yaml "github.com/goccy/go-yaml"
)

var (
	errConfigPathEmpty         = errors.New("config path is empty")
	errRatioOutOfRange         = errors.New("must be within [0,1]")
	errMustBePositive          = errors.New("must be positive")
	errMustBeNonNegative       = errors.New("must be non-negative")
	errMinGreaterThanMax       = errors.New("min_barcode_length cannot be greater than max_barcode_length")
	errUnknownPolicy           = errors.New("not_found_policy must be generate or not_found")
	errUnknownDetector         = errors.New("camera detector must be heuristic or zxing")
	errAddressMustBeHostPort   = errors.New("address must be host:port or :port")
	errMQTTBrokerRequired      = errors.New("mqtt broker is required when mqtt is enabled")
	errMQTTInvalidQoS          = errors.New("mqtt qos must be 0, 1 or 2")
	errRemoteURLInvalid        = errors.New("resolver remote url must be http(s)://host")
	errNetworkScannerNameEmpty = errors.New("network scanner name cannot be empty")
	errNetworkScannerAddrEmpty = errors.New("network scanner address cannot be empty")
	errDuplicateNetworkScanner = errors.New("duplicate network scanner name")
	errSerialPortEmpty         = errors.New("serial port name cannot be empty")
	errCameraImageDirNotFound  = errors.New("camera image_dir is not a directory")
	errHIDVendorIDOutOfRange   = errors.New("hid vendor id must fit in 16 bits")
)

const (
	DefaultAppName = "scanbridge"

	defaultSampleEveryNFrames = 30
	defaultWedgeTimeoutMs     = 1000
	defaultMinBarcodeLength   = 4
	defaultMaxBarcodeLength   = 100
	defaultFuzzyThreshold     = 0.8
	defaultDemoSuccessRate    = 0.8
	defaultDemoLatency        = 3 * time.Second
	defaultHistorySize        = 10
	defaultCameraFPS          = 30
	defaultCameraOpenTimeout  = 10 * time.Second
	defaultHIDIdleFlush       = 150 * time.Millisecond
	defaultSerialBaudRate     = 9600
	defaultBluetoothDiscovery = 3 * time.Second
	defaultNetworkOpenTimeout = 5 * time.Second
	defaultMDNSService        = "_barcode-scanner._tcp.local."
	defaultMDNSTimeout        = 2 * time.Second
	defaultCacheEntries       = 1024
	defaultCacheTTL           = 5 * time.Minute
	defaultRemoteTimeout      = 3 * time.Second
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	defaultHTTPListen         = "127.0.0.1:47824"
	defaultHTTPReadTimeout    = 30 * time.Second
	defaultHTTPWriteTimeout   = 30 * time.Second
	defaultHTTPIdleTimeout    = 120 * time.Second
	defaultMaxHeaderBytes     = 1024 * 1024 // 1MB
	defaultRateLimitRPS       = 20
	defaultRateLimitBurst     = 40
	defaultMQTTBroker         = "tcp://localhost:1883"
	defaultMQTTTopicPrefix    = "scanbridge"
	defaultMQTTQoS            = 1
	defaultFilePerm           = 0o600
	maxQoS                    = 2
	maxUint16                 = 0xffff

	DetectorHeuristic = "heuristic"
	DetectorZXing     = "zxing"

	PolicyGenerate = "generate"
	PolicyNotFound = "not_found"
)

// LogConfig defines logging configuration.
type LogConfig struct {
	Level  string `json:"level"  yaml:"level,omitempty"`
	Format string `json:"format" yaml:"format,omitempty"`
}

// ScannerConfig holds the decode and session tuning options.
type ScannerConfig struct {
	SampleEveryNFrames     int           `json:"sample_every_n_frames"     yaml:"sample_every_n_frames"`
	KeyboardWedgeTimeoutMs int           `json:"keyboard_wedge_timeout_ms" yaml:"keyboard_wedge_timeout_ms"`
	MinBarcodeLength       int           `json:"min_barcode_length"        yaml:"min_barcode_length"`
	MaxBarcodeLength       int           `json:"max_barcode_length"        yaml:"max_barcode_length"`
	FuzzyMatchThreshold    float64       `json:"fuzzy_match_threshold"     yaml:"fuzzy_match_threshold"`
	DemoSuccessRate        float64       `json:"demo_success_rate"         yaml:"demo_success_rate"`
	DemoLatency            time.Duration `json:"demo_latency"              yaml:"demo_latency"`
	HistorySize            int           `json:"history_size"              yaml:"history_size"`
	ScanTimeout            time.Duration `json:"scan_timeout"              yaml:"scan_timeout"`
	KeepConnection         bool          `json:"keep_connection"           yaml:"keep_connection"`
}

// WedgeTimeout returns the keyboard wedge inter-key gap as a duration.
func (s ScannerConfig) WedgeTimeout() time.Duration {
	return time.Duration(s.KeyboardWedgeTimeoutMs) * time.Millisecond
}

// CameraConfig configures the camera transport.
type CameraConfig struct {
	Enabled     bool          `json:"enabled"      yaml:"enabled"`
	Detector    string        `json:"detector"     yaml:"detector"`
	ImageDir    string        `json:"image_dir"    yaml:"image_dir,omitempty"`
	FPS         int           `json:"fps"          yaml:"fps"`
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// HIDConfig configures USB HID scanners.
type HIDConfig struct {
	Enabled   bool          `json:"enabled"    yaml:"enabled"`
	VendorIDs []uint32      `json:"vendor_ids" yaml:"vendor_ids,omitempty"`
	IdleFlush time.Duration `json:"idle_flush" yaml:"idle_flush"`
}

// SerialConfig configures serial and USB-CDC scanners.
type SerialConfig struct {
	Enabled  bool     `json:"enabled"   yaml:"enabled"`
	Ports    []string `json:"ports"     yaml:"ports,omitempty"`
	BaudRate int      `json:"baud_rate" yaml:"baud_rate"`
}

// BluetoothConfig configures BLE scanners.
type BluetoothConfig struct {
	Enabled          bool          `json:"enabled"           yaml:"enabled"`
	DiscoveryTimeout time.Duration `json:"discovery_timeout" yaml:"discovery_timeout"`
}

// NetworkScannerConfig is a statically configured network scanner.
type NetworkScannerConfig struct {
	Name    string `json:"name"    yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// MDNSConfig configures network scanner discovery on the local link.
type MDNSConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Service string        `json:"service" yaml:"service"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// NetworkConfig configures network scanners.
type NetworkConfig struct {
	Enabled     bool                   `json:"enabled"      yaml:"enabled"`
	OpenTimeout time.Duration          `json:"open_timeout" yaml:"open_timeout"`
	Scanners    []NetworkScannerConfig `json:"scanners"     yaml:"scanners,omitempty"`
	MDNS        MDNSConfig             `json:"mdns"         yaml:"mdns"`
}

// WedgeConfig configures the keyboard wedge transport.
type WedgeConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Stdin   bool `json:"stdin"   yaml:"stdin"`
}

// DemoConfig configures the simulated transports.
type DemoConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Candidates replaces the reading set of the "demo" device.
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// TransportsConfig enables and tunes each transport kind.
type TransportsConfig struct {
	Camera        CameraConfig    `json:"camera"         yaml:"camera"`
	HID           HIDConfig       `json:"hid"            yaml:"hid"`
	Serial        SerialConfig    `json:"serial"         yaml:"serial"`
	Bluetooth     BluetoothConfig `json:"bluetooth"      yaml:"bluetooth"`
	Network       NetworkConfig   `json:"network"        yaml:"network"`
	KeyboardWedge WedgeConfig     `json:"keyboard_wedge" yaml:"keyboard_wedge"`
	Demo          DemoConfig      `json:"demo"           yaml:"demo"`
}

// CacheConfig bounds the resolver cache.
type CacheConfig struct {
	MaxEntries int           `json:"max_entries" yaml:"max_entries"`
	TTL        time.Duration `json:"ttl"         yaml:"ttl"`
}

// BreakerConfig configures the circuit breaker in front of the remote product service.
type BreakerConfig struct {
	MaxFailures uint32        `json:"max_failures" yaml:"max_failures"`
	Timeout     time.Duration `json:"timeout"      yaml:"timeout"`
}

// RemoteConfig configures the optional remote product service.
type RemoteConfig struct {
	URL     string        `json:"url"     yaml:"url,omitempty"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

// ResolverConfig configures product resolution.
type ResolverConfig struct {
	NotFoundPolicy string       `json:"not_found_policy" yaml:"not_found_policy"`
	CatalogFile    string       `json:"catalog_file"     yaml:"catalog_file,omitempty"`
	WatchCatalog   bool         `json:"watch_catalog"    yaml:"watch_catalog"`
	Cache          CacheConfig  `json:"cache"            yaml:"cache"`
	Remote         RemoteConfig `json:"remote"           yaml:"remote"`
}

// RateLimitConfig limits API requests per client address.
type RateLimitConfig struct {
	RPS   float64 `json:"rps"   yaml:"rps"`
	Burst int     `json:"burst" yaml:"burst"`
}

// HTTPConfig defines HTTP API server settings.
type HTTPConfig struct {
	Enabled        bool            `json:"enabled"          yaml:"enabled"`
	Listen         string          `json:"listen"           yaml:"listen"`
	ReadTimeout    time.Duration   `json:"read_timeout"     yaml:"read_timeout"`
	WriteTimeout   time.Duration   `json:"write_timeout"    yaml:"write_timeout"`
	IdleTimeout    time.Duration   `json:"idle_timeout"     yaml:"idle_timeout"`
	MaxHeaderBytes int             `json:"max_header_bytes" yaml:"max_header_bytes"`
	RateLimit      RateLimitConfig `json:"rate_limit"       yaml:"rate_limit"`
}

// MQTTConfig configures the MQTT event sink.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"      yaml:"enabled"`
	Broker      string `json:"broker"       yaml:"broker"`
	ClientID    string `json:"client_id"    yaml:"client_id"`
	Username    string `json:"username"     yaml:"username,omitempty"`
	Password    string `json:"-"            yaml:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `json:"qos"          yaml:"qos"`
}

// Config is the main application configuration.
type Config struct {
	AppName    string           `json:"app_name"   yaml:"app_name,omitempty"`
	Log        LogConfig        `json:"log"        yaml:"log,omitempty"`
	Scanner    ScannerConfig    `json:"scanner"    yaml:"scanner"`
	Transports TransportsConfig `json:"transports" yaml:"transports"`
	Resolver   ResolverConfig   `json:"resolver"   yaml:"resolver"`
	HTTP       HTTPConfig       `json:"http"       yaml:"http"`
	MQTT       MQTTConfig       `json:"mqtt"       yaml:"mqtt"`
	Path       string           `json:"-"          yaml:"-"`
}

// global mutex to serialize YAML writes.
var saveMu sync.Mutex //nolint:gochecknoglobals // global mutex for config writes

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AppName: DefaultAppName,
		Log:     LogConfig{Level: "info", Format: "json"},
		Scanner: ScannerConfig{
			SampleEveryNFrames:     defaultSampleEveryNFrames,
			KeyboardWedgeTimeoutMs: defaultWedgeTimeoutMs,
			MinBarcodeLength:       defaultMinBarcodeLength,
			MaxBarcodeLength:       defaultMaxBarcodeLength,
			FuzzyMatchThreshold:    defaultFuzzyThreshold,
			DemoSuccessRate:        defaultDemoSuccessRate,
			DemoLatency:            defaultDemoLatency,
			HistorySize:            defaultHistorySize,
		},
		Transports: TransportsConfig{
			Camera: CameraConfig{
				Enabled:     true,
				Detector:    DetectorHeuristic,
				FPS:         defaultCameraFPS,
				OpenTimeout: defaultCameraOpenTimeout,
			},
			HID:       HIDConfig{Enabled: true, IdleFlush: defaultHIDIdleFlush},
			Serial:    SerialConfig{BaudRate: defaultSerialBaudRate},
			Bluetooth: BluetoothConfig{Enabled: true, DiscoveryTimeout: defaultBluetoothDiscovery},
			Network: NetworkConfig{
				Enabled:     true,
				OpenTimeout: defaultNetworkOpenTimeout,
				MDNS:        MDNSConfig{Service: defaultMDNSService, Timeout: defaultMDNSTimeout},
			},
			KeyboardWedge: WedgeConfig{Enabled: true},
			Demo:          DemoConfig{Enabled: true},
		},
		Resolver: ResolverConfig{
			NotFoundPolicy: PolicyGenerate,
			WatchCatalog:   true,
			Cache:          CacheConfig{MaxEntries: defaultCacheEntries, TTL: defaultCacheTTL},
			Remote: RemoteConfig{
				Timeout: defaultRemoteTimeout,
				Breaker: BreakerConfig{MaxFailures: defaultBreakerMaxFailures, Timeout: defaultBreakerTimeout},
			},
		},
		HTTP: HTTPConfig{
			Enabled:        true,
			Listen:         defaultHTTPListen,
			ReadTimeout:    defaultHTTPReadTimeout,
			WriteTimeout:   defaultHTTPWriteTimeout,
			IdleTimeout:    defaultHTTPIdleTimeout,
			MaxHeaderBytes: defaultMaxHeaderBytes,
			RateLimit:      RateLimitConfig{RPS: defaultRateLimitRPS, Burst: defaultRateLimitBurst},
		},
		MQTT: MQTTConfig{
			Broker:      defaultMQTTBroker,
			ClientID:    DefaultAppName,
			TopicPrefix: defaultMQTTTopicPrefix,
			QoS:         defaultMQTTQoS,
		},
	}
}

// Load reads path over the defaults, fills remaining zero values and validates.
// Keys absent from the file keep their default; explicit values, including
// false, win.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errConfigPathEmpty
	}

	b, err := os.ReadFile(path) //nolint:gosec // config file path comes from the command line
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

//nolint:cyclop,funlen // one branch per defaulted field
func (c *Config) applyDefaults() {
	d := Default()

	if c.AppName == "" {
		c.AppName = d.AppName
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}

	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.Transports.Camera.Detector == "" {
		c.Transports.Camera.Detector = d.Transports.Camera.Detector
	}

	if c.Transports.Camera.FPS == 0 {
		c.Transports.Camera.FPS = d.Transports.Camera.FPS
	}

	if c.Transports.Camera.OpenTimeout == 0 {
		c.Transports.Camera.OpenTimeout = d.Transports.Camera.OpenTimeout
	}

	if c.Transports.HID.IdleFlush == 0 {
		c.Transports.HID.IdleFlush = d.Transports.HID.IdleFlush
	}

	if c.Transports.Serial.BaudRate == 0 {
		c.Transports.Serial.BaudRate = d.Transports.Serial.BaudRate
	}

	if c.Transports.Bluetooth.DiscoveryTimeout == 0 {
		c.Transports.Bluetooth.DiscoveryTimeout = d.Transports.Bluetooth.DiscoveryTimeout
	}

	if c.Transports.Network.OpenTimeout == 0 {
		c.Transports.Network.OpenTimeout = d.Transports.Network.OpenTimeout
	}

	if c.Transports.Network.MDNS.Service == "" {
		c.Transports.Network.MDNS.Service = d.Transports.Network.MDNS.Service
	}

	if c.Transports.Network.MDNS.Timeout == 0 {
		c.Transports.Network.MDNS.Timeout = d.Transports.Network.MDNS.Timeout
	}

	if c.Resolver.NotFoundPolicy == "" {
		c.Resolver.NotFoundPolicy = d.Resolver.NotFoundPolicy
	}

	if c.Resolver.Cache.MaxEntries == 0 {
		c.Resolver.Cache.MaxEntries = d.Resolver.Cache.MaxEntries
	}

	if c.Resolver.Cache.TTL == 0 {
		c.Resolver.Cache.TTL = d.Resolver.Cache.TTL
	}

	if c.Resolver.Remote.Timeout == 0 {
		c.Resolver.Remote.Timeout = d.Resolver.Remote.Timeout
	}

	if c.Resolver.Remote.Breaker.MaxFailures == 0 {
		c.Resolver.Remote.Breaker.MaxFailures = d.Resolver.Remote.Breaker.MaxFailures
	}

	if c.Resolver.Remote.Breaker.Timeout == 0 {
		c.Resolver.Remote.Breaker.Timeout = d.Resolver.Remote.Breaker.Timeout
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = d.HTTP.Listen
	}

	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = d.HTTP.ReadTimeout
	}

	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = d.HTTP.WriteTimeout
	}

	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = d.HTTP.IdleTimeout
	}

	if c.HTTP.MaxHeaderBytes == 0 {
		c.HTTP.MaxHeaderBytes = d.HTTP.MaxHeaderBytes
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.AppName
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
}

// Save writes the configuration back to the original file path.
func (c *Config) Save() error {
	saveMu.Lock()
	defer saveMu.Unlock()

	if c.Path == "" {
		return fmt.Errorf("%w: config path is empty", errConfigPathEmpty)
	}

	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(c.Path, out, defaultFilePerm); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", c.Path, err)
	}

	return nil
}

func (c *Config) Validate() error { //nolint:gocognit,cyclop,funlen
	s := c.Scanner

	if s.SampleEveryNFrames <= 0 {
		return fmt.Errorf("scanner.sample_every_n_frames %w", errMustBePositive)
	}

	if s.KeyboardWedgeTimeoutMs <= 0 {
		return fmt.Errorf("scanner.keyboard_wedge_timeout_ms %w", errMustBePositive)
	}

	if s.MinBarcodeLength <= 0 || s.MaxBarcodeLength <= 0 {
		return fmt.Errorf("scanner barcode lengths %w", errMustBePositive)
	}

	if s.MinBarcodeLength > s.MaxBarcodeLength {
		return errMinGreaterThanMax
	}

	if s.FuzzyMatchThreshold < 0 || s.FuzzyMatchThreshold > 1 {
		return fmt.Errorf("scanner.fuzzy_match_threshold %w", errRatioOutOfRange)
	}

	if s.DemoSuccessRate < 0 || s.DemoSuccessRate > 1 {
		return fmt.Errorf("scanner.demo_success_rate %w", errRatioOutOfRange)
	}

	if s.DemoLatency < 0 || s.ScanTimeout < 0 {
		return fmt.Errorf("scanner durations %w", errMustBeNonNegative)
	}

	if s.HistorySize <= 0 {
		return fmt.Errorf("scanner.history_size %w", errMustBePositive)
	}

	t := c.Transports

	switch t.Camera.Detector {
	case DetectorHeuristic, DetectorZXing:
	default:
		return fmt.Errorf("%w: %q", errUnknownDetector, t.Camera.Detector)
	}

	if t.Camera.FPS <= 0 {
		return fmt.Errorf("transports.camera.fps %w", errMustBePositive)
	}

	if t.Camera.ImageDir != "" {
		if st, err := os.Stat(t.Camera.ImageDir); err != nil || !st.IsDir() {
			return fmt.Errorf("%w: %s", errCameraImageDirNotFound, t.Camera.ImageDir)
		}
	}

	for _, v := range t.HID.VendorIDs {
		if v > maxUint16 {
			return fmt.Errorf("%w: %#x", errHIDVendorIDOutOfRange, v)
		}
	}

	for _, p := range t.Serial.Ports {
		if strings.TrimSpace(p) == "" {
			return errSerialPortEmpty
		}
	}

	if t.Serial.BaudRate <= 0 {
		return fmt.Errorf("transports.serial.baud_rate %w", errMustBePositive)
	}

	names := map[string]struct{}{}

	for _, sc := range t.Network.Scanners {
		if strings.TrimSpace(sc.Name) == "" {
			return errNetworkScannerNameEmpty
		}

		if _, ok := names[sc.Name]; ok {
			return fmt.Errorf("%w: %s", errDuplicateNetworkScanner, sc.Name)
		}

		names[sc.Name] = struct{}{}

		if strings.TrimSpace(sc.Address) == "" {
			return fmt.Errorf("network scanner '%s': %w", sc.Name, errNetworkScannerAddrEmpty)
		}
	}

	switch c.Resolver.NotFoundPolicy {
	case PolicyGenerate, PolicyNotFound:
	default:
		return fmt.Errorf("%w: %q", errUnknownPolicy, c.Resolver.NotFoundPolicy)
	}

	if c.Resolver.Cache.MaxEntries < 0 || c.Resolver.Cache.TTL < 0 {
		return fmt.Errorf("resolver.cache %w", errMustBeNonNegative)
	}

	if raw := c.Resolver.Remote.URL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %s", errRemoteURLInvalid, raw)
		}
	}

	if c.HTTP.Enabled {
		if err := validateAddr(c.HTTP.Listen); err != nil {
			return fmt.Errorf("invalid http.listen: %w", err)
		}

		if c.HTTP.RateLimit.RPS < 0 || c.HTTP.RateLimit.Burst < 0 {
			return fmt.Errorf("http.rate_limit %w", errMustBeNonNegative)
		}
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return errMQTTBrokerRequired
		}

		if c.MQTT.QoS > maxQoS {
			return errMQTTInvalidQoS
		}
	}

	return nil
}

func validateAddr(addr string) error {
	if !strings.HasPrefix(addr, ":") && !strings.Contains(addr, ":") {
		return errAddressMustBeHostPort
	}

	_, _, err := net.SplitHostPort(addr)

	return err
}
