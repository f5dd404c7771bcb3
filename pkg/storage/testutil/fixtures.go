package testutil

import (
	"time"

	"github.com/absmach/flcoord/pkg/client"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/google/uuid"
)

func TestClient(id string) client.Client {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return client.Client{
		ID:           id,
		Status:       client.Online,
		TotalSamples: 120,
		LastSeen:     now,
		RegisteredAt: now.Add(-time.Minute),
	}
}

func TestSession(projectID string) session.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return session.New(uuid.Must(uuid.NewV7()).String(), session.Config{
		ProjectID:     projectID,
		TotalRounds:   3,
		MinClients:    2,
		RoundTimeout:  session.Duration(30 * time.Second),
		QuorumTimeout: session.Duration(time.Minute),
	}, now)
}

func TestRoundMetrics(sessionID string, round uint64, ts time.Time) fl.RoundMetrics {
	return fl.RoundMetrics{
		SessionID:    sessionID,
		Round:        round,
		Accuracy:     0.5 + float64(round)/100,
		Loss:         1.0 / float64(round+1),
		NumClients:   2,
		TotalSamples: 300,
		Contributions: []fl.Contribution{
			{ClientID: "h1", NumSamples: 100, Accuracy: 0.5, Loss: 0.9},
			{ClientID: "h2", NumSamples: 200, Accuracy: 0.6, Loss: 0.7},
		},
		Timestamp: ts.UTC().Truncate(time.Millisecond),
	}
}

func TestModel(sessionID string, version uint64) fl.Model {
	return fl.Model{
		SessionID: sessionID,
		Version:   version,
		Weights:   fl.Weights{"dense": {0.1 * float64(version), 0.2}, "bias": {0.3}},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}
