package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	customerrors "github.com/bavix/scanbridge/internal/errors"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultTopicPrefix       = "scanbridge"
	maxQoS                   = 2
)

var (
	errBrokerRequired = errors.New("mqtt broker is required")
	errInvalidQoS     = errors.New("mqtt qos must be 0, 1 or 2")
	errPublishTimeout = errors.New("mqtt publish timed out")
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Publisher is the part of a paho client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	IsConnected() bool
}

// MQTTSink publishes events as JSON to {prefix}/scan, {prefix}/product and
// {prefix}/connection.
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
	close  func()
}

// NewMQTTSink builds a sink over an existing publisher.
func NewMQTTSink(pub Publisher, prefix string, qos byte) *MQTTSink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	return &MQTTSink{pub: pub, prefix: prefix, qos: qos, close: func() {}}
}

// ConnectMQTT connects to the broker and returns a sink. The broker keeps a
// retained online/offline status on {prefix}/status.
func ConnectMQTT(ctx context.Context, cfg MQTTConfig) (*MQTTSink, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errBrokerRequired
	}

	if cfg.QoS > maxQoS {
		return nil, errInvalidQoS
	}

	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	statusTopic := prefix + "/status"

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(statusTopic, statusPayload("offline", cfg.ClientID, "unexpected_disconnect"), 1, true)

	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.Broker, err)
	}

	client.Publish(statusTopic, 1, true, statusPayload("online", cfg.ClientID, ""))

	s := NewMQTTSink(client, prefix, cfg.QoS)
	s.close = func() {
		waitTokenQuiet(client.Publish(statusTopic, 1, true, statusPayload("offline", cfg.ClientID, "graceful_shutdown")))
		client.Disconnect(defaultDisconnectQuiesce)
	}

	return s, nil
}

func statusPayload(status, clientID, reason string) string {
	b, _ := json.Marshal(map[string]string{ //nolint:errchkjson // string map always marshals
		"status":    status,
		"client_id": clientID,
		"reason":    reason,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	return string(b)
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an event type is published to.
func (s *MQTTSink) Topic(t Type) string {
	switch t {
	case TypeScanResult:
		return s.prefix + "/scan"
	case TypeResolvedProduct:
		return s.prefix + "/product"
	case TypeConnectionState:
		return s.prefix + "/connection"
	default:
		return s.prefix + "/" + string(t)
	}
}

func (s *MQTTSink) Publish(ctx context.Context, ev Event) error {
	if !s.pub.IsConnected() {
		return customerrors.ErrSinkNotConnected
	}

	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}

	return waitToken(ctx, s.pub.Publish(s.Topic(ev.Type), s.qos, false, payload), defaultPublishTimeout)
}

// Close publishes the offline status and disconnects.
func (s *MQTTSink) Close() {
	s.close()
}

func waitToken(ctx context.Context, tok pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return errPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitTokenQuiet(tok pahomqtt.Token) {
	tok.WaitTimeout(defaultPublishTimeout)
}
