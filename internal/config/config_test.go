package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "scanbridge", cfg.AppName)
	assert.Equal(t, 30, cfg.Scanner.SampleEveryNFrames)
	assert.Equal(t, time.Second, cfg.Scanner.WedgeTimeout())
	assert.Equal(t, 4, cfg.Scanner.MinBarcodeLength)
	assert.Equal(t, 100, cfg.Scanner.MaxBarcodeLength)
	assert.InDelta(t, 0.8, cfg.Scanner.FuzzyMatchThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.Scanner.DemoSuccessRate, 1e-9)
	assert.Equal(t, 10, cfg.Scanner.HistorySize)
	assert.False(t, cfg.Scanner.KeepConnection)
	assert.Equal(t, 5*time.Second, cfg.Transports.Network.OpenTimeout)
	assert.Equal(t, 10*time.Second, cfg.Transports.Camera.OpenTimeout)
	assert.Equal(t, 3*time.Second, cfg.Transports.Bluetooth.DiscoveryTimeout)
	assert.False(t, cfg.Transports.Serial.Enabled)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, config.PolicyGenerate, cfg.Resolver.NotFoundPolicy)
}

func TestLoad_KeepsDefaultsAndExplicitFalse(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
app_name: till-3
scanner:
  demo_success_rate: 1
  keyboard_wedge_timeout_ms: 250
transports:
  camera:
    enabled: false
  network:
    scanners:
      - name: lobby
        address: lobby.local:80
resolver:
  not_found_policy: not_found
  cache:
    ttl: 30s
mqtt:
  enabled: true
  broker: tcp://broker:1883
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "till-3", cfg.AppName)
	assert.InDelta(t, 1.0, cfg.Scanner.DemoSuccessRate, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanner.WedgeTimeout())
	assert.Equal(t, 30, cfg.Scanner.SampleEveryNFrames)
	assert.False(t, cfg.Transports.Camera.Enabled)
	assert.True(t, cfg.Transports.HID.Enabled)
	assert.Equal(t, config.DetectorHeuristic, cfg.Transports.Camera.Detector)
	require.Len(t, cfg.Transports.Network.Scanners, 1)
	assert.Equal(t, "lobby.local:80", cfg.Transports.Network.Scanners[0].Address)
	assert.Equal(t, config.PolicyNotFound, cfg.Resolver.NotFoundPolicy)
	assert.Equal(t, 30*time.Second, cfg.Resolver.Cache.TTL)
	assert.Equal(t, 1024, cfg.Resolver.Cache.MaxEntries)
	assert.Equal(t, "scanbridge", cfg.MQTT.ClientID)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "broken yaml", content: "scanner: ["},
		{name: "threshold above one", content: "scanner:\n  fuzzy_match_threshold: 1.5\n"},
		{name: "negative success rate", content: "scanner:\n  demo_success_rate: -0.1\n"},
		{name: "zero frame cadence", content: "scanner:\n  sample_every_n_frames: -1\n"},
		{name: "min above max", content: "scanner:\n  min_barcode_length: 20\n  max_barcode_length: 10\n"},
		{name: "unknown policy", content: "resolver:\n  not_found_policy: guess\n"},
		{name: "unknown detector", content: "transports:\n  camera:\n    detector: ml\n"},
		{name: "missing image dir", content: "transports:\n  camera:\n    image_dir: /does/not/exist\n"},
		{name: "vendor id too large", content: "transports:\n  hid:\n    vendor_ids: [70000]\n"},
		{name: "duplicate network scanner", content: "transports:\n  network:\n    scanners:\n      - {name: a, address: a:80}\n      - {name: a, address: b:80}\n"},
		{name: "network scanner without address", content: "transports:\n  network:\n    scanners:\n      - {name: a}\n"},
		{name: "listen not host port", content: "http:\n  listen: localhost\n"},
		{name: "mqtt without broker", content: "mqtt:\n  enabled: true\n  broker: \"\"\n"},
		{name: "mqtt qos", content: "mqtt:\n  enabled: true\n  qos: 3\n"},
		{name: "remote url scheme", content: "resolver:\n  remote:\n    url: ftp://products\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = config.Load("")
	require.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "app_name: till-9\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	cfg.Scanner.HistorySize = 25
	cfg.Transports.Serial.Ports = []string{"/dev/ttyACM0"}
	require.NoError(t, cfg.Save())

	again, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, again.Scanner.HistorySize)
	assert.Equal(t, []string{"/dev/ttyACM0"}, again.Transports.Serial.Ports)
	assert.Equal(t, "till-9", again.AppName)

	require.Error(t, config.Default().Save())
}
