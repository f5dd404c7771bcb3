package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/session"
)

type Type string

const (
	TrainingStarted   Type = "training_started"
	RoundStarted      Type = "round_started"
	MetricsUpdate     Type = "metrics_update"
	ClientRegistered  Type = "client_registered"
	TrainingCompleted Type = "training_completed"
	TrainingFailed    Type = "training_failed"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event")
)

// Payload is implemented by the fixed set of event bodies.
type Payload interface {
	EventType() Type
}

type TrainingStartedData struct {
	SessionID string `json:"session_id"`
}

type RoundStartedData struct {
	SessionID    string   `json:"session_id"`
	Round        uint64   `json:"round"`
	ModelVersion uint64   `json:"model_version"`
	Participants []string `json:"participants"`
}

type MetricsUpdateData struct {
	SessionID  string  `json:"session_id"`
	Round      uint64  `json:"round"`
	Accuracy   float64 `json:"accuracy"`
	Loss       float64 `json:"loss"`
	NumClients uint64  `json:"num_clients"`
}

type ClientRegisteredData struct {
	ClientID string `json:"client_id"`
}

type TrainingCompletedData struct {
	SessionID string `json:"session_id"`
}

type TrainingFailedData struct {
	SessionID string         `json:"session_id"`
	Reason    session.Reason `json:"reason"`
	Message   string         `json:"message,omitempty"`
}

func (TrainingStartedData) EventType() Type   { return TrainingStarted }
func (RoundStartedData) EventType() Type      { return RoundStarted }
func (MetricsUpdateData) EventType() Type     { return MetricsUpdate }
func (ClientRegisteredData) EventType() Type  { return ClientRegistered }
func (TrainingCompletedData) EventType() Type { return TrainingCompleted }
func (TrainingFailedData) EventType() Type    { return TrainingFailed }

type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
}

func New(p Payload, now time.Time) Event {
	return Event{Type: p.EventType(), Timestamp: now, Data: p}
}

// Snapshot is the current view handed to observers that (re)connect.
type Snapshot struct {
	Session   *session.Session `json:"session,omitempty"`
	Clients   []client.Client  `json:"online_clients"`
	Timestamp time.Time        `json:"timestamp"`
}

type envelope struct {
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func Encode(e Event) ([]byte, error) {
	if e.Data == nil || e.Data.EventType() != e.Type {
		return nil, fmt.Errorf("%w: type %q does not match payload", ErrMalformed, e.Type)
	}

	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, errors.Join(ErrMalformed, err)
	}

	var p Payload
	switch env.Type {
	case TrainingStarted:
		p = &TrainingStartedData{}
	case RoundStarted:
		p = &RoundStartedData{}
	case MetricsUpdate:
		p = &MetricsUpdateData{}
	case ClientRegistered:
		p = &ClientRegisteredData{}
	case TrainingCompleted:
		p = &TrainingCompletedData{}
	case TrainingFailed:
		p = &TrainingFailedData{}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if len(env.Data) == 0 {
		return Event{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return Event{}, errors.Join(ErrMalformed, err)
	}

	return Event{Type: env.Type, Timestamp: env.Timestamp, Data: deref(p)}, nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *TrainingStartedData:
		return *v
	case *RoundStartedData:
		return *v
	case *MetricsUpdateData:
		return *v
	case *ClientRegisteredData:
		return *v
	case *TrainingCompletedData:
		return *v
	case *TrainingFailedData:
		return *v
	default:
		return p
	}
}
