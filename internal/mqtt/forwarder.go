// Package mqtt mirrors poll results to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"wiimwatch/internal/config"
	"wiimwatch/internal/models"
	"wiimwatch/internal/view"
)

const (
	queueSize      = 16
	publishTimeout = 5 * time.Second
)

// Message is the payload published for every poll result.
type Message struct {
	Session   string        `json:"session"`
	Target    models.Target `json:"target"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Header    view.Header   `json:"header"`
	Rows      []view.Row    `json:"rows,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type publishFunc func(topic string, payload []byte) error

// Forwarder publishes snapshots without ever blocking the poll loop.
type Forwarder struct {
	prefix  string
	session string
	logger  *slog.Logger
	client  paho.Client
	publish publishFunc

	queue  chan Message
	doneCh chan struct{}
}

// NewForwarder configures a paho client for cfg. Call Run to connect and drain.
func NewForwarder(cfg config.MQTT, session string, logger *slog.Logger) *Forwarder {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	f := newForwarder(cfg.TopicPrefix, session, logger, nil)
	f.client = paho.NewClient(opts)
	f.publish = f.publishPaho
	return f
}

func newForwarder(prefix, session string, logger *slog.Logger, publish publishFunc) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		prefix:  strings.Trim(prefix, "/"),
		session: session,
		logger:  logger,
		publish: publish,
		queue:   make(chan Message, queueSize),
		doneCh:  make(chan struct{}),
	}
}

// Topic returns the topic a target publishes to.
func (f *Forwarder) Topic(target models.Target) string {
	return fmt.Sprintf("%s/%s/%s", f.prefix, target.Kind, target.ID)
}

// Present implements the poller's presenter contract.
func (f *Forwarder) Present(snap models.Snapshot) {
	adapter := view.NewAdapter()
	adapter.Update(snap.Tags)
	f.enqueue(Message{
		Session:   f.session,
		Target:    snap.Target,
		OK:        true,
		Header:    view.Header{Title: snap.Title, Summary: snap.Summary, Zone: snap.Zone},
		Rows:      adapter.Rows(),
		Timestamp: snap.FetchedAt,
	})
}

// Failure enqueues an error message for target.
func (f *Forwarder) Failure(target models.Target, err error) {
	msg := Message{Session: f.session, Target: target, Timestamp: time.Now().UTC()}
	if err != nil {
		msg.Error = err.Error()
	}
	f.enqueue(msg)
}

func (f *Forwarder) enqueue(msg Message) {
	select {
	case f.queue <- msg:
	default:
		f.logger.Warn("mqtt queue full, dropping message", "target", msg.Target.String())
	}
}

// Run connects (when backed by a broker) and publishes queued messages until ctx is done.
func (f *Forwarder) Run(ctx context.Context) error {
	defer close(f.doneCh)

	if f.client != nil {
		if err := f.connect(ctx); err != nil {
			return err
		}
		defer f.client.Disconnect(250)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-f.queue:
			payload, err := json.Marshal(msg)
			if err != nil {
				f.logger.Error("encode mqtt message", "error", err)
				continue
			}
			topic := f.Topic(msg.Target)
			if err := f.publish(topic, payload); err != nil {
				f.logger.Error("mqtt publish failed", "topic", topic, "error", err)
				continue
			}
			f.logger.Debug("published snapshot", "topic", topic, "ok", msg.OK)
		}
	}
}

// Done is closed once Run returns.
func (f *Forwarder) Done() <-chan struct{} {
	return f.doneCh
}

func (f *Forwarder) connect(ctx context.Context) error {
	token := f.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (f *Forwarder) publishPaho(topic string, payload []byte) error {
	if !f.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	token := f.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
