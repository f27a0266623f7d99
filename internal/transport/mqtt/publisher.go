// SPDX-License-Identifier: MIT

// Package mqtt publishes payloads to a broker topic.
package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"spectrum/internal/errs"
	applog "spectrum/internal/log"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	clientIDPrefix        = "spectrum-"
)

// Config holds the broker connection settings.
type Config struct {
	Broker         string // e.g. tcp://localhost:1883
	Topic          string
	ClientID       string // Generated when empty.
	Username       string
	Password       string
	QoS            byte
	Retain         bool
	ConnectTimeout time.Duration
}

// ConnectionObserver is told when the broker connection goes up or down.
type ConnectionObserver interface {
	SetBrokerConnected(connected bool)
}

// newClient is replaced in tests.
var newClient = paho.NewClient

// Publisher sends each payload as one message to the configured topic. It
// never waits for the broker: QoS 0 messages are fire-and-forget and a
// disconnected client drops payloads until the background reconnect succeeds.
type Publisher struct {
	cfg      Config
	client   paho.Client
	observer ConnectionObserver
	logger   *applog.Logger

	closeOnce sync.Once
}

// NewPublisher validates cfg and builds the client. It does not connect.
// observer may be nil.
func NewPublisher(cfg Config, observer ConnectionObserver) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker must be set: %w", errs.ErrConfigInvalid)
	}
	if _, err := url.Parse(cfg.Broker); err != nil {
		return nil, fmt.Errorf("mqtt: invalid broker URL: %w: %w", errs.ErrConfigInvalid, err)
	}
	if cfg.Topic == "" || strings.ContainsAny(cfg.Topic, "+#") {
		return nil, fmt.Errorf("mqtt: topic %q must be non-empty and free of wildcards: %w", cfg.Topic, errs.ErrConfigInvalid)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: qos %d out of range: %w", cfg.QoS, errs.ErrConfigInvalid)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = clientIDPrefix + uuid.NewString()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	p := &Publisher{
		cfg:      cfg,
		observer: observer,
		logger:   applog.Named("mqtt"),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)

	p.client = newClient(opts)
	return p, nil
}

// ClientID returns the client identifier presented to the broker.
func (p *Publisher) ClientID() string { return p.cfg.ClientID }

// Topic returns the topic payloads are published to.
func (p *Publisher) Topic() string { return p.cfg.Topic }

// Connect starts connecting and waits up to the connect timeout. A broker that
// is unreachable yields an ErrPublishTransient error; the client keeps retrying
// in the background, so callers may log it and carry on.
func (p *Publisher) Connect(ctx context.Context) error {
	p.logger.Infof("connecting to %s as %s", p.cfg.Broker, p.cfg.ClientID)
	token := p.client.Connect()

	timer := time.NewTimer(p.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: connection error: %w: %w", errs.ErrPublishTransient, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("mqtt: connection to %s timed out after %s, retrying in background: %w",
			p.cfg.Broker, p.cfg.ConnectTimeout, errs.ErrPublishTransient)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the client currently has a broker connection.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Publish hands payload to the client and returns without waiting for the
// broker. An error already attached to the token is reported.
func (p *Publisher) Publish(_ context.Context, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt: not connected to broker: %w", errs.ErrPublishTransient)
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retain, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish to %s failed: %w: %w", p.cfg.Topic, errs.ErrPublishTransient, err)
		}
	default:
	}
	return nil
}

// Close disconnects from the broker. It is idempotent.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Debugf("disconnecting from %s", p.cfg.Broker)
		p.client.Disconnect(disconnectQuiesce)
		p.setConnected(false)
	})
	return nil
}

func (p *Publisher) onConnect(paho.Client) {
	p.logger.Infof("connected to broker %s", p.cfg.Broker)
	p.setConnected(true)
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warnf("connection to broker %s lost: %v", p.cfg.Broker, err)
	p.setConnected(false)
}

func (p *Publisher) setConnected(connected bool) {
	if p.observer != nil {
		p.observer.SetBrokerConnected(connected)
	}
}
