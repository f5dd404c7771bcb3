package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt"
)

var (
	errInvalidClientID = errors.New("invalid client_id")
	errEmptyClientID   = errors.New("client id is empty")
	errInvalidSamples  = errors.New("invalid sample_count")
)

// IngressTopics lists the client-facing topics the coordinator consumes.
// Its own events, invitations and submit results stay unsubscribed.
func IngressTopics(baseTopic string) []string {
	return []string{
		baseTopic + "/clients/+",
		baseTopic + "/updates",
	}
}

// Subscribe wires MQTT ingress under baseTopic to the service.
func Subscribe(ctx context.Context, baseTopic string, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) error {
	handler := Handle(ctx, baseTopic, pubsub, svc, logger)
	for _, topic := range IngressTopics(baseTopic) {
		if err := pubsub.Subscribe(ctx, topic, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	return nil
}

func Handle(ctx context.Context, baseTopic string, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) mqtt.Handler {
	return func(topic string, msg map[string]any) error {
		switch topic {
		case baseTopic + "/clients/register":
			id, err := clientID(msg)
			if err != nil {
				return err
			}
			samples, err := sampleCount(msg)
			if err != nil {
				return err
			}
			if _, err := svc.RegisterClient(ctx, id, samples); err != nil {
				return err
			}

			logger.InfoContext(ctx, "successfully registered client", slog.String("client_id", id))
		case baseTopic + "/clients/heartbeat":
			id, err := clientID(msg)
			if err != nil {
				return err
			}
			_, err = svc.Heartbeat(ctx, id)

			return err
		case baseTopic + "/clients/disconnect":
			id, err := clientID(msg)
			if err != nil {
				return err
			}
			_, err = svc.DisconnectClient(ctx, id)

			return err
		case baseTopic + "/updates":
			return handleUpdate(ctx, baseTopic, msg, pubsub, svc)
		}

		return nil
	}
}

func handleUpdate(ctx context.Context, baseTopic string, msg map[string]any, pubsub mqtt.PubSub, svc Service) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var u fl.Update
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("invalid round update: %w", err)
	}

	res, err := svc.SubmitUpdate(ctx, u)
	if err != nil {
		return err
	}

	return pubsub.Publish(ctx, baseTopic+"/updates/"+u.ClientID+"/result", res)
}

func clientID(msg map[string]any) (string, error) {
	id, ok := msg["client_id"].(string)
	if !ok {
		return "", errInvalidClientID
	}
	if id == "" {
		return "", errEmptyClientID
	}

	return id, nil
}

func sampleCount(msg map[string]any) (uint64, error) {
	v, ok := msg["sample_count"]
	if !ok {
		return 0, nil
	}
	n, ok := v.(float64)
	if !ok || n < 0 || n != float64(uint64(n)) {
		return 0, errInvalidSamples
	}

	return uint64(n), nil
}

// ForwardEvents republishes every broadcaster event on <base>/events/<type>
// until ctx ends.
func ForwardEvents(ctx context.Context, baseTopic string, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) error {
	sub, err := svc.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := events.Encode(e)
			if err != nil {
				logger.Warn("failed to encode event", slog.String("type", string(e.Type)), slog.Any("error", err))

				continue
			}
			if err := pubsub.Publish(ctx, baseTopic+"/events/"+string(e.Type), data); err != nil {
				logger.Warn("failed to publish event", slog.String("type", string(e.Type)), slog.Any("error", err))
			}
		}
	}
}

type mqttNotifier struct {
	pubsub mqtt.PubSub
	topic  string
}

// NewMQTTNotifier publishes round invitations on <base>/rounds/start.
func NewMQTTNotifier(pubsub mqtt.PubSub, baseTopic string) RoundNotifier {
	return &mqttNotifier{pubsub: pubsub, topic: baseTopic + "/rounds/start"}
}

func (n *mqttNotifier) NotifyRoundStart(ctx context.Context, inv RoundInvitation) error {
	return n.pubsub.Publish(ctx, n.topic, inv)
}
