package scheduler

import (
	"errors"
	"fmt"

	"github.com/absmach/flcoord/pkg/client"
)

const (
	PolicyAll        = "all"
	PolicyRoundRobin = "round_robin"
	PolicySamples    = "samples"
)

var (
	ErrNoClient      = errors.New("no client was provided")
	ErrNoLiveClients = errors.New("all clients are offline")
	ErrUnknownPolicy = errors.New("unknown scheduling policy")
)

// Scheduler picks the clients invited to a round. A zero limit means no
// cap. The result is sorted by client id.
type Scheduler interface {
	SelectParticipants(round uint64, clients []client.Client, limit uint64) ([]string, error)
}

func New(policy string) (Scheduler, error) {
	switch policy {
	case "", PolicyAll:
		return NewAllOnline(), nil
	case PolicyRoundRobin:
		return NewRoundRobin(), nil
	case PolicySamples:
		return NewBySamples(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, policy)
	}
}

type allOnline struct{}

func NewAllOnline() Scheduler {
	return allOnline{}
}

func (allOnline) SelectParticipants(_ uint64, clients []client.Client, limit uint64) ([]string, error) {
	alive, err := online(clients)
	if err != nil {
		return nil, err
	}
	if limit > 0 && uint64(len(alive)) > limit {
		alive = alive[:limit]
	}

	return ids(alive), nil
}
