package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/transport"
)

type fakeNetworkScanner struct {
	mu       sync.Mutex
	config   map[string]any
	commands []map[string]any
	upgrader websocket.Upgrader
	send     []string
}

func (f *fakeNetworkScanner) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/scanner/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	mux.HandleFunc("POST /api/scanner/config", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.config = body
		f.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/scanner/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd map[string]any
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}

		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()

		for _, m := range f.send {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}

		_, _, _ = conn.ReadMessage()
	})

	return mux
}

func addressOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestNetworkDriver_HandshakeAndStream(t *testing.T) {
	t.Parallel()

	fake := &fakeNetworkScanner{send: []string{`{"type":"barcode","value":"4006381333931"}`}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	drv := transport.NewNetworkDriver(srv.Client(), nil, time.Second)

	h, err := drv.Open(context.Background(), &devices.Descriptor{
		ID: "net", Kind: devices.KindNetwork, Specs: map[string]string{devices.SpecAddress: addressOf(srv)},
	})
	require.NoError(t, err)

	defer h.Close()

	sig := nextSignal(t, h)
	assert.JSONEq(t, `{"type":"barcode","value":"4006381333931"}`, string(sig.Data))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, "continuous", fake.config["mode"])
	assert.Equal(t, []any{"ean13", "upca", "code128", "qr"}, fake.config["formats"])
	require.Len(t, fake.commands, 1)
	assert.Equal(t, "configure", fake.commands[0]["action"])
	assert.Equal(t, map[string]any{"continuous": true, "auto_focus": true, "illumination": true}, fake.commands[0]["settings"])
}

func TestNetworkDriver_StreamDropIsConnectionLost(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scanner/stream" {
			http.NotFound(w, r)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	}))
	defer srv.Close()

	h, err := transport.NewNetworkDriver(srv.Client(), nil, time.Second).Open(context.Background(),
		&devices.Descriptor{ID: "net", Specs: map[string]string{devices.SpecAddress: addressOf(srv)}})
	require.NoError(t, err)

	waitDone(t, h)
	require.ErrorIs(t, h.Err(), customerrors.ErrConnectionLost)
}

func TestNetworkDriver_AllProtocolsFail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := transport.NewNetworkDriver(srv.Client(), nil, time.Second).Open(context.Background(),
		&devices.Descriptor{ID: "net", Specs: map[string]string{devices.SpecAddress: addressOf(srv)}})
	require.ErrorIs(t, err, customerrors.ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "all connection protocols failed")
}

func TestNetworkDriver_ControlOnlyScannerFails(t *testing.T) {
	t.Parallel()

	var configured sync.WaitGroup

	configured.Add(1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scanner/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	mux.HandleFunc("POST /api/scanner/config", func(w http.ResponseWriter, _ *http.Request) {
		configured.Done()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := transport.NewNetworkDriver(srv.Client(), nil, time.Second).Open(context.Background(),
		&devices.Descriptor{ID: "net", Specs: map[string]string{devices.SpecAddress: addressOf(srv)}})
	require.ErrorIs(t, err, customerrors.ErrDeviceNotFound, "no stream, no data path")
	assert.Contains(t, err.Error(), "all connection protocols failed")

	configured.Wait()
}

func TestNetworkDriver_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	_, err := transport.NewNetworkDriver(srv.Client(), nil, 100*time.Millisecond).Open(context.Background(),
		&devices.Descriptor{ID: "net", Specs: map[string]string{devices.SpecAddress: addressOf(srv)}})
	require.ErrorIs(t, err, customerrors.ErrTimeout)
}
