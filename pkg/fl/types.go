package fl

import (
	"math"
	"sort"
	"time"
)

// Weights holds named parameter tensors, flattened to one dimension each.
type Weights map[string][]float64

func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = append([]float64(nil), v...)
	}

	return out
}

// Keys returns the parameter names in lexical order.
func (w Weights) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func (w Weights) finite() bool {
	for _, v := range w {
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}

	return true
}

// Update is a single client's contribution to one round.
type Update struct {
	SessionID  string    `json:"session_id,omitempty"`
	ClientID   string    `json:"client_id"`
	Round      uint64    `json:"round_number"`
	Weights    Weights   `json:"weights"`
	NumSamples uint64    `json:"num_samples"`
	Loss       float64   `json:"local_loss"`
	Accuracy   float64   `json:"local_accuracy"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

func (u Update) Validate() error {
	if u.ClientID == "" {
		return ErrEmptyClient
	}
	if u.Round < 1 {
		return ErrInvalidRound
	}
	if !u.Weights.finite() || math.IsNaN(u.Loss) || math.IsInf(u.Loss, 0) ||
		math.IsNaN(u.Accuracy) || math.IsInf(u.Accuracy, 0) {
		return ErrNotFinite
	}

	return nil
}

// Model is an immutable global model version. Version equals the round that
// produced it, 0 being the initial model.
type Model struct {
	SessionID string    `json:"session_id"`
	Version   uint64    `json:"version"`
	Weights   Weights   `json:"weights"`
	CreatedAt time.Time `json:"created_at"`
}

// Contribution is the per-client share of an aggregated round.
type Contribution struct {
	ClientID   string  `json:"client_id"`
	NumSamples uint64  `json:"num_samples"`
	Loss       float64 `json:"loss"`
	Accuracy   float64 `json:"accuracy"`
}

// Result is the outcome of aggregating one round's pool.
type Result struct {
	Weights       Weights        `json:"weights"`
	Loss          float64        `json:"loss"`
	Accuracy      float64        `json:"accuracy"`
	NumClients    uint64         `json:"num_clients"`
	TotalSamples  uint64         `json:"total_samples"`
	Contributions []Contribution `json:"contributions"`
}

// RoundMetrics is the ledger entry written after every aggregated round.
type RoundMetrics struct {
	SessionID     string         `json:"session_id"`
	Round         uint64         `json:"round"`
	Accuracy      float64        `json:"accuracy"`
	Loss          float64        `json:"loss"`
	NumClients    uint64         `json:"num_clients"`
	TotalSamples  uint64         `json:"total_samples"`
	Contributions []Contribution `json:"client_metrics,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// RoundGap marks rounds skipped between two recorded rounds.
type RoundGap struct {
	After  uint64 `json:"after"`
	Before uint64 `json:"before"`
}

type RoundMetricsPage struct {
	Offset  uint64         `json:"offset"`
	Limit   uint64         `json:"limit"`
	Total   uint64         `json:"total"`
	Records []RoundMetrics `json:"records"`
	Gaps    []RoundGap     `json:"gaps,omitempty"`
}

type Aggregator interface {
	Aggregate(updates []Update) (Result, error)
}
