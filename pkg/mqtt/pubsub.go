package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10 * time.Second
	reconnTimeout  = time.Minute
	disconnTimeout = 250
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errConnectTimeout     = errors.New("timeout reached while connecting to MQTT broker")
	errEmptyTopic         = errors.New("empty topic")
	errEmptyID            = errors.New("empty ID")

	lwtPayloadTemplate = `{"status":"offline","instance_id":"%s"}`
)

// Handler receives a decoded JSON object published on topic.
type Handler func(topic string, msg map[string]any) error

type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]Handler
}

// NewPubSub connects to the broker. When willTopic is set the broker
// publishes an offline notice there if the connection drops. Subscriptions
// are restored after every reconnect since sessions are clean.
func NewPubSub(url string, qos byte, id, username, password, willTopic string, timeout time.Duration, logger *slog.Logger) (PubSub, error) {
	if id == "" {
		return nil, errEmptyID
	}

	ps := &pubsub{
		qos:           qos,
		timeout:       timeout,
		logger:        logger,
		subscriptions: make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(id).
		SetUsername(username).
		SetPassword(password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout).
		SetMaxReconnectInterval(reconnTimeout).
		SetOnConnectHandler(ps.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", slog.Any("error", err))
		}).
		SetReconnectingHandler(func(_ mqtt.Client, o *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting", slog.String("client_id", o.ClientID))
		})
	if willTopic != "" {
		opts.SetWill(willTopic, fmt.Sprintf(lwtPayloadTemplate, id), 0, false)
	}

	ps.client = mqtt.NewClient(opts)
	if err := ps.wait(context.Background(), ps.client.Connect(), errConnectTimeout); err != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), err)
	}

	return ps, nil
}

// Publish sends msg as is when it is already encoded and as JSON otherwise.
func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}

	var data []byte
	switch m := msg.(type) {
	case []byte:
		data = m
	case json.RawMessage:
		data = m
	default:
		var err error
		if data, err = json.Marshal(msg); err != nil {
			return err
		}
	}

	return ps.wait(ctx, ps.client.Publish(topic, ps.qos, false, data), errPublishTimeout)
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	if err := ps.wait(ctx, ps.client.Subscribe(topic, ps.qos, ps.mqttHandler(handler)), errSubscribeTimeout); err != nil {
		return err
	}

	ps.mu.Lock()
	ps.subscriptions[topic] = handler
	ps.mu.Unlock()

	return nil
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	delete(ps.subscriptions, topic)
	ps.mu.Unlock()

	return ps.wait(ctx, ps.client.Unsubscribe(topic), errUnsubscribeTimeout)
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		ps.client.Disconnect(disconnTimeout)

		return nil
	}
}

// wait blocks until the token completes, ctx ends or the configured
// timeout passes, whichever comes first.
func (ps *pubsub) wait(ctx context.Context, token mqtt.Token, timeoutErr error) error {
	timer := time.NewTimer(ps.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return timeoutErr
	}
}

func (ps *pubsub) onConnect(c mqtt.Client) {
	ps.mu.Lock()
	subs := make(map[string]Handler, len(ps.subscriptions))
	for topic, h := range ps.subscriptions {
		subs[topic] = h
	}
	ps.mu.Unlock()

	ps.logger.Info("MQTT connection established", slog.Int("subscriptions", len(subs)))

	for topic, h := range subs {
		token := c.Subscribe(topic, ps.qos, ps.mqttHandler(h))
		if !token.WaitTimeout(ps.timeout) || token.Error() != nil {
			ps.logger.Error("failed to restore MQTT subscription", slog.String("topic", topic), slog.Any("error", token.Error()))
		}
	}
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		defer m.Ack()

		var msg map[string]any
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			ps.logger.Warn("failed to unmarshal received message", slog.String("topic", m.Topic()), slog.Any("error", err))

			return
		}

		if err := h(m.Topic(), msg); err != nil {
			ps.logger.Warn("failed to handle MQTT message", slog.String("topic", m.Topic()), slog.Any("error", err))
		}
	}
}
