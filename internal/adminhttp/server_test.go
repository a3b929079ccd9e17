package adminhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/adminhttp"
	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/devices"
	"github.com/bavix/scanbridge/internal/scanner"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Scanner.DemoLatency = 0
	cfg.Scanner.DemoSuccessRate = 1
	cfg.Transports.Camera.Enabled = false
	cfg.Transports.HID.Enabled = false
	cfg.Transports.Network.Enabled = false
	cfg.HTTP.RateLimit.RPS = 0

	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	svc, err := scanner.New(ctx, cfg, scanner.Hosts{})
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))

	ts := httptest.NewServer(adminhttp.NewServer(&cfg.HTTP, svc).Handler(ctx))

	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = svc.Shutdown(context.Background())
	})

	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var rd bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&rd).Encode(body))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, &rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestHealthAndInfo(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	var health map[string]any
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/health", nil, &health))
	assert.Equal(t, "healthy", health["status"])

	var info struct {
		Service struct {
			App   string `json:"app"`
			State string `json:"state"`
		} `json:"service"`
		Build struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/info", nil, &info))
	assert.Equal(t, "scanbridge", info.Service.App)
	assert.Equal(t, "disconnected", info.Service.State)
	assert.Equal(t, "dev", info.Build.Version)

	var stats map[string]any
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/stats", nil, &stats))
	assert.Contains(t, stats, "scans_total")
}

func TestScanFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	var list struct {
		Devices []devices.Descriptor `json:"devices"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices", nil, &list))
	require.NotEmpty(t, list.Devices)

	var conn map[string]any
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/v1/connection",
		map[string]string{"device_id": devices.IDDemo}, &conn))
	assert.Equal(t, "connected", conn["state"])

	var res struct {
		ID      string `json:"id"`
		Barcode string `json:"barcode"`
		Success bool   `json:"success"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/v1/scan?wait=true", nil, &res))
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Barcode)

	var history struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/history?limit=5", nil, &history))
	require.Len(t, history.Results, 1)
	assert.Equal(t, res.ID, history.Results[0].ID)

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, ts.URL+"/api/v1/scan", nil, nil))
	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, ts.URL+"/api/v1/connection", nil, nil))
}

func TestConnectionErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "missing id", body: map[string]string{}, status: http.StatusBadRequest},
		{name: "unknown device", body: map[string]string{"device_id": "nope"}, status: http.StatusNotFound},
		{name: "no driver", body: map[string]string{"device_id": devices.IDAIScanner}, status: http.StatusNotImplemented},
	}

	for _, tt := range tests {
		var out map[string]any
		assert.Equal(t, tt.status, doJSON(t, http.MethodPost, ts.URL+"/api/v1/connection", tt.body, &out), tt.name)
		assert.NotEmpty(t, out["error"], tt.name)
	}

	var out map[string]any
	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, ts.URL+"/api/v1/scan", nil, &out))
}

func TestValidateAndProducts(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *config.Config) { c.Resolver.NotFoundPolicy = config.PolicyNotFound })

	var v struct {
		IsValid bool   `json:"is_valid"`
		Format  string `json:"format"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/validate/4006381333931", nil, &v))
	assert.True(t, v.IsValid)
	assert.Equal(t, "EAN13", v.Format)

	var p struct {
		Code    string `json:"code"`
		Match   string `json:"match"`
		Product *struct {
			Name string `json:"name"`
		} `json:"product"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/products/1234567890123", nil, &p))
	assert.Equal(t, "exact", p.Match)
	require.NotNil(t, p.Product)
	assert.Equal(t, "Demo Product A", p.Product.Name)

	p.Product = nil
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+"/api/v1/products/4006381333931", nil, &p))
	assert.Equal(t, "not_found", p.Match)
	assert.Nil(t, p.Product)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *config.Config) {
		c.HTTP.RateLimit.RPS = 0.001
		c.HTTP.RateLimit.Burst = 1
	})

	var out map[string]any
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/history", nil, &out))
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, http.MethodGet, ts.URL+"/api/v1/history", nil, &out))

	// Only the API is limited.
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/health", nil, &out))
}

func TestWebSocketEvents(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)

	defer resp.Body.Close()
	defer ws.Close()

	type message struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	var first message
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "connection_state", first.Type)

	var second message
	require.NoError(t, ws.ReadJSON(&second))
	assert.Equal(t, "history", second.Type)

	var list map[string]any
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices", nil, &list))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/v1/connection",
		map[string]string{"device_id": devices.IDDemo}, &list))
	require.Equal(t, http.StatusAccepted, doJSON(t, http.MethodPost, ts.URL+"/api/v1/scan", nil, &list))

	seen := map[string]bool{}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))

	for !seen["scan_result"] || !seen["resolved_product"] {
		var m message
		require.NoError(t, ws.ReadJSON(&m))

		seen[m.Type] = true
	}

	assert.True(t, seen["connection_state"])
}
