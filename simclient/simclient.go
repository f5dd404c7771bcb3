// Package simclient implements a simulated training participant. It
// registers with the coordinator, keeps itself online and answers every
// active round with a synthetic update.
package simclient

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/pkg/session"
)

const (
	defHeartbeatInterval = 5 * time.Second
	defPollInterval      = 2 * time.Second
	defWeights           = 4
	maxAccuracy          = 0.99
)

var (
	errEmptyID      = errors.New("client id is required")
	errEmptySamples = errors.New("sample count must be positive")
)

type Config struct {
	ID                string
	SampleCount       uint64
	BaseAccuracy      float64
	Weights           int
	CBOR              bool
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
}

func (c Config) Validate() error {
	if c.ID == "" {
		return errEmptyID
	}
	if c.SampleCount == 0 {
		return errEmptySamples
	}

	return nil
}

type Client struct {
	cfg    Config
	sdk    sdk.SDK
	seed   float64
	logger *slog.Logger

	sessionID string
	lastRound uint64
}

func New(cfg Config, s sdk.SDK, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Weights <= 0 {
		cfg.Weights = defWeights
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defHeartbeatInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defPollInterval
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(cfg.ID))

	return &Client{
		cfg:    cfg,
		sdk:    s,
		seed:   float64(h.Sum32()%1000) / 1000,
		logger: logger.With(slog.String("client_id", cfg.ID)),
	}, nil
}

// Run registers the client and trains until ctx ends or the session it
// joined reaches a terminal state.
func (c *Client) Run(ctx context.Context) error {
	if _, err := c.sdk.RegisterClient(c.cfg.ID, c.cfg.SampleCount); err != nil {
		return fmt.Errorf("failed to register client: %w", err)
	}
	c.logger.Info("registered with coordinator", slog.Uint64("sample_count", c.cfg.SampleCount))

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := c.sdk.DisconnectClient(c.cfg.ID); err != nil {
				c.logger.Warn("failed to disconnect", slog.Any("error", err))
			}

			return nil
		case <-heartbeat.C:
			if _, err := c.sdk.Heartbeat(c.cfg.ID); err != nil {
				c.logger.Warn("failed to send heartbeat", slog.Any("error", err))
			}
		case <-poll.C:
			done, err := c.Step()
			if err != nil {
				c.logger.Warn("training step failed", slog.Any("error", err))
			}
			if done {
				return nil
			}
		}
	}
}

// Step polls the coordinator once and submits an update when a round this
// client has not answered yet is open. It reports true once the session the
// client took part in is over.
func (c *Client) Step() (bool, error) {
	st, err := c.sdk.Status()
	if err != nil {
		return false, err
	}

	if c.sessionID != "" && st.SessionID == c.sessionID && session.State(st.State).Terminal() {
		c.logger.Info("session finished", slog.String("session_id", st.SessionID), slog.String("state", st.State))

		return true, nil
	}
	if session.State(st.State) != session.RoundActive {
		return false, nil
	}
	if st.SessionID != c.sessionID {
		c.sessionID = st.SessionID
		c.lastRound = 0
	}
	if st.CurrentRound <= c.lastRound {
		return false, nil
	}

	u := c.Update(st.SessionID, st.CurrentRound)
	submit := c.sdk.SubmitUpdate
	if c.cfg.CBOR {
		submit = c.sdk.SubmitUpdateCBOR
	}
	res, err := submit(u)
	if err != nil {
		return false, err
	}
	c.lastRound = st.CurrentRound

	if !res.Accepted {
		c.logger.Info("update rejected", slog.Uint64("round", u.Round), slog.String("reason", res.Reason))

		return false, nil
	}
	c.logger.Info("update accepted", slog.Uint64("round", u.Round), slog.Float64("accuracy", u.Accuracy))

	return false, nil
}

// Update builds the synthetic contribution for round. Accuracy climbs
// towards maxAccuracy as rounds progress and loss falls accordingly.
func (c *Client) Update(sessionID string, round uint64) sdk.Update {
	acc := c.cfg.BaseAccuracy + (maxAccuracy-c.cfg.BaseAccuracy)*(1-math.Exp(-0.3*float64(round)))
	acc = math.Min(acc, maxAccuracy)

	layer := make([]float64, c.cfg.Weights)
	for i := range layer {
		layer[i] = c.seed + float64(i+1)*0.01*float64(round)
	}

	return sdk.Update{
		SessionID:  sessionID,
		ClientID:   c.cfg.ID,
		Round:      round,
		Weights:    map[string][]float64{"dense": layer, "bias": {c.seed}},
		NumSamples: c.cfg.SampleCount,
		Loss:       1 - acc,
		Accuracy:   acc,
	}
}
