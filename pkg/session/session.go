package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// State is the fine-grained lifecycle position of a session.
type State string

const (
	Idle           State = "idle"
	AwaitingQuorum State = "awaiting_quorum"
	RoundActive    State = "round_active"
	Aggregating    State = "aggregating"
	Completed      State = "completed"
	Failed         State = "failed"
)

// Status is the coarse view of State exposed to observers.
type Status string

const (
	Pending        Status = "pending"
	Running        Status = "running"
	StatusComplete Status = "completed"
	StatusFailed   Status = "failed"
)

// Reason is the machine-readable cause of a failed session.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonQuorumTimeout     Reason = "quorum_timeout"
	ReasonRoundTimeout      Reason = "round_timeout"
	ReasonQuorumLost        Reason = "quorum_lost"
	ReasonAggregationFailed Reason = "aggregation_failed"
	ReasonLedgerIntegrity   Reason = "ledger_integrity"
	ReasonCancelled         Reason = "cancelled"
	ReasonInterrupted       Reason = "interrupted"
)

var (
	ErrZeroRounds  = errors.New("total_rounds must be at least 1")
	ErrZeroClients = errors.New("min_clients must be at least 1")
	ErrEmptyID     = errors.New("empty project id")
	ErrTimeout     = errors.New("timeouts must not be negative")
	ErrCohort      = errors.New("max_participants must not be below min_clients")
)

func (s State) Status() Status {
	switch s {
	case RoundActive, Aggregating:
		return Running
	case Completed:
		return StatusComplete
	case Failed:
		return StatusFailed
	default:
		return Pending
	}
}

func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Duration is a time.Duration that travels as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	case float64:
		*d = Duration(time.Duration(val) * time.Second)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}

	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the parameters a session is started with.
type Config struct {
	ProjectID       string   `json:"project_id"`
	TotalRounds     uint64   `json:"total_rounds"`
	MinClients      uint64   `json:"min_clients"`
	RoundTimeout    Duration `json:"round_timeout,omitempty"`
	QuorumTimeout   Duration `json:"quorum_timeout,omitempty"`
	MaxParticipants uint64   `json:"max_participants,omitempty"`
}

func (c Config) Validate() error {
	if c.ProjectID == "" {
		return ErrEmptyID
	}
	if c.TotalRounds < 1 {
		return ErrZeroRounds
	}
	if c.MinClients < 1 {
		return ErrZeroClients
	}
	if c.RoundTimeout < 0 || c.QuorumTimeout < 0 {
		return ErrTimeout
	}
	if c.MaxParticipants > 0 && c.MaxParticipants < c.MinClients {
		return ErrCohort
	}

	return nil
}

type Session struct {
	ID              string    `json:"session_id"`
	ProjectID       string    `json:"project_id"`
	State           State     `json:"state"`
	Status          Status    `json:"status"`
	CurrentRound    uint64    `json:"current_round"`
	TotalRounds     uint64    `json:"total_rounds"`
	MinClients      uint64    `json:"min_clients"`
	MaxParticipants uint64    `json:"max_participants,omitempty"`
	RoundTimeout    Duration  `json:"round_timeout"`
	QuorumTimeout   Duration  `json:"quorum_timeout"`
	Reason          Reason    `json:"reason,omitempty"`
	Message         string    `json:"message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// New creates an idle session from cfg.
func New(id string, cfg Config, now time.Time) Session {
	return Session{
		ID:              id,
		ProjectID:       cfg.ProjectID,
		State:           Idle,
		Status:          Idle.Status(),
		TotalRounds:     cfg.TotalRounds,
		MinClients:      cfg.MinClients,
		MaxParticipants: cfg.MaxParticipants,
		RoundTimeout:    cfg.RoundTimeout,
		QuorumTimeout:   cfg.QuorumTimeout,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetState moves the session to st and keeps Status and timestamps in sync.
func (s *Session) SetState(st State, now time.Time) {
	s.State = st
	s.Status = st.Status()
	s.UpdatedAt = now
	if st == RoundActive && s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if st.Terminal() {
		s.FinishedAt = now
	}
}

// Fail moves the session to the failed state with a reason.
func (s *Session) Fail(reason Reason, msg string, now time.Time) {
	s.Reason = reason
	s.Message = msg
	s.SetState(Failed, now)
}

func (s Session) Terminal() bool {
	return s.State.Terminal()
}

type Page struct {
	Offset   uint64    `json:"offset"`
	Limit    uint64    `json:"limit"`
	Total    uint64    `json:"total"`
	Sessions []Session `json:"sessions"`
}
