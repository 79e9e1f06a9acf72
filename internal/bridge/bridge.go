// Package bridge relays room event payloads between server instances over
// MQTT, so that reactions reach peers connected to another node.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrNotConnected = errors.New("bridge: not connected")

// Envelope wraps one room event payload on the broker.
type Envelope struct {
	Node    string `msgpack:"node"`
	Room    string `msgpack:"room"`
	Payload []byte `msgpack:"payload"`
}

// Encode packs env for publishing.
func Encode(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

// Decode unpacks a broker message.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Room == "" || env.Node == "" {
		return Envelope{}, errors.New("decode envelope: missing room or node")
	}
	return env, nil
}

// Config holds broker settings.
type Config struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// DeliverFunc hands a remote payload to the local room.
type DeliverFunc func(room string, payload []byte)

// MQTT is a bridge backed by an MQTT broker.
type MQTT struct {
	cfg     Config
	node    string
	deliver DeliverFunc
	logger  *slog.Logger
	client  mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	received  uint64
	errors    uint64
}

// NewMQTT returns an unconnected bridge. node identifies this instance so
// its own messages can be ignored when they come back from the broker.
func NewMQTT(cfg Config, node string, deliver DeliverFunc, logger *slog.Logger) *MQTT {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "liveboard"
	}
	return &MQTT{
		cfg:     cfg,
		node:    node,
		deliver: deliver,
		logger:  logger,
	}
}

func (b *MQTT) topic(room string) string {
	return fmt.Sprintf("%s/%s/events", b.cfg.TopicPrefix, room)
}

// Connect dials the broker and subscribes to every room's events. The
// client reconnects on its own afterwards and resubscribes on each
// connect.
func (b *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID("liveboard-" + b.node)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)

	wildcard := b.cfg.TopicPrefix + "/+/events"
	opts.OnConnect = func(c mqtt.Client) {
		b.setConnected(true)
		token := c.Subscribe(wildcard, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			b.handle(msg.Payload())
		})
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			b.logger.Error("mqtt subscribe failed", "topic", wildcard, "error", token.Error())
			return
		}
		b.logger.Info("mqtt bridge connected", "broker", b.cfg.Broker, "topic", wildcard, "node", b.node)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.setConnected(false)
		b.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", b.cfg.Broker, "error", err)
	}

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connect %s: timeout", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}
	return nil
}

func (b *MQTT) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// Publish sends payload to the other instances. It does not wait for the
// broker: failures are counted and logged.
func (b *MQTT) Publish(room string, payload []byte) error {
	b.mu.RLock()
	connected := b.connected
	b.mu.RUnlock()
	if !connected || b.client == nil {
		b.countError()
		return ErrNotConnected
	}

	msg, err := Encode(Envelope{Node: b.node, Room: room, Payload: payload})
	if err != nil {
		b.countError()
		return fmt.Errorf("encode envelope: %w", err)
	}

	token := b.client.Publish(b.topic(room), b.cfg.QoS, false, msg)
	go func() {
		if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
			b.countError()
			b.logger.Debug("mqtt publish failed", "room", room, "error", token.Error())
			return
		}
		b.mu.Lock()
		b.published++
		b.mu.Unlock()
	}()
	return nil
}

func (b *MQTT) countError() {
	b.mu.Lock()
	b.errors++
	b.mu.Unlock()
}

// handle delivers an envelope from another node.
func (b *MQTT) handle(raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		b.countError()
		b.logger.Debug("dropping bridge message", "error", err)
		return
	}
	if env.Node == b.node || strings.ContainsAny(env.Room, "/+#") {
		return
	}
	b.mu.Lock()
	b.received++
	b.mu.Unlock()
	b.deliver(env.Room, env.Payload)
}

// Stats reports bridge counters.
func (b *MQTT) Stats() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]any{
		"connected": b.connected,
		"published": b.published,
		"received":  b.received,
		"errors":    b.errors,
	}
}

// Close disconnects from the broker.
func (b *MQTT) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	b.setConnected(false)
}
