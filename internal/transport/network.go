package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
)

// DefaultNetworkOpenTimeout bounds the whole handshake sequence.
const DefaultNetworkOpenTimeout = 5 * time.Second

const (
	statusPath = "/api/scanner/status"
	configPath = "/api/scanner/config"
	streamPath = "/scanner/stream"
)

var errAllProtocolsFailed = errors.New("all connection protocols failed")

type scannerConfig struct {
	Mode     string          `json:"mode"`
	Formats  []string        `json:"formats"`
	Feedback scannerFeedback `json:"feedback"`
}

type scannerFeedback struct {
	Sound   bool `json:"sound"`
	Vibrate bool `json:"vibrate"`
	LED     bool `json:"led"`
}

type streamCommand struct {
	Action   string         `json:"action"`
	Settings map[string]any `json:"settings"`
}

func defaultScannerConfig() scannerConfig {
	return scannerConfig{
		Mode:     "continuous",
		Formats:  []string{"ean13", "upca", "code128", "qr"},
		Feedback: scannerFeedback{Sound: true, Vibrate: true, LED: true},
	}
}

func defaultStreamSettings() map[string]any {
	return map[string]any{"continuous": true, "auto_focus": true, "illumination": true}
}

// NetworkDriver talks to scanners that expose an HTTP control API and a websocket
// barcode stream. The HTTP handshake configures the scanner when it answers; the
// stream is the data path and must connect for the open to succeed.
type NetworkDriver struct {
	client      *http.Client
	dialer      *websocket.Dialer
	openTimeout time.Duration
}

// NewNetworkDriver creates a network socket driver. A nil client or dialer uses the defaults.
func NewNetworkDriver(client *http.Client, dialer *websocket.Dialer, openTimeout time.Duration) *NetworkDriver {
	if client == nil {
		client = http.DefaultClient
	}

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	if openTimeout <= 0 {
		openTimeout = DefaultNetworkOpenTimeout
	}

	return &NetworkDriver{client: client, dialer: dialer, openTimeout: openTimeout}
}

func (n *NetworkDriver) Kind() devices.TransportKind { return devices.KindNetwork }

func (n *NetworkDriver) Open(ctx context.Context, d *devices.Descriptor) (Handle, error) {
	addr := d.Spec(devices.SpecAddress)
	if addr == "" {
		return nil, fmt.Errorf("%w: %s has no address", customerrors.ErrDeviceNotFound, d.ID)
	}

	log := zerolog.Ctx(ctx).With().Str("address", addr).Logger()

	octx, cancel := context.WithTimeout(ctx, n.openTimeout)
	defer cancel()

	for _, scheme := range []string{"http", "https"} {
		if err := n.handshake(octx, scheme+"://"+addr); err != nil {
			log.Debug().Err(err).Str("scheme", scheme).Msg("scanner control handshake failed")

			continue
		}

		log.Debug().Str("scheme", scheme).Msg("scanner configured")

		break
	}

	for _, scheme := range []string{"ws", "wss"} {
		conn, resp, err := n.dialer.DialContext(octx, scheme+"://"+addr+streamPath, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		if err != nil {
			log.Debug().Err(err).Str("scheme", scheme).Msg("scanner stream dial failed")

			continue
		}

		h := &networkHandle{conn: conn}
		h.baseHandle = newBaseHandle(ctx, devices.KindNetwork, conn.Close)

		if err := h.Configure(octx, defaultStreamSettings()); err != nil {
			_ = h.Close()

			log.Debug().Err(err).Str("scheme", scheme).Msg("scanner stream configure failed")

			continue
		}

		go h.pump()

		return h, nil
	}

	if errors.Is(octx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", customerrors.ErrTimeout, addr)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("%w: %s: %w", customerrors.ErrDeviceNotFound, addr, errAllProtocolsFailed)
}

func (n *NetworkDriver) handshake(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+statusPath, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint answered %d", resp.StatusCode)
	}

	body, err := json.Marshal(defaultScannerConfig())
	if err != nil {
		return err
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, base+configPath, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err = n.client.Do(req)
	if err != nil {
		return err
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Body.Close()
}

type networkHandle struct {
	*baseHandle

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Configure sends a configure command over the stream.
func (h *networkHandle) Configure(ctx context.Context, opts map[string]any) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = h.conn.SetWriteDeadline(deadline)
		defer func() { _ = h.conn.SetWriteDeadline(time.Time{}) }()
	}

	return h.conn.WriteJSON(streamCommand{Action: "configure", Settings: opts})
}

func (h *networkHandle) pump() {
	for {
		_, msg, err := h.conn.ReadMessage()
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}

			zerolog.Ctx(h.ctx).Warn().Err(err).Msg("scanner stream closed")
			h.lost(err)

			return
		}

		if !h.emit(RawSignal{Data: msg}) {
			return
		}
	}
}
