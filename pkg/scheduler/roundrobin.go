package scheduler

import (
	"sort"
	"sync"

	"github.com/absmach/flcoord/pkg/client"
)

type roundRobin struct {
	mu   sync.Mutex
	last int
}

// NewRoundRobin rotates a fixed-size window over the online set, so
// every client is invited in turn.
func NewRoundRobin() Scheduler {
	return &roundRobin{}
}

func (r *roundRobin) SelectParticipants(_ uint64, clients []client.Client, limit uint64) ([]string, error) {
	alive, err := online(clients)
	if err != nil {
		return nil, err
	}
	if limit == 0 || uint64(len(alive)) <= limit {
		return ids(alive), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.last % len(alive)
	picked := make([]client.Client, 0, limit)
	for i := range int(limit) {
		picked = append(picked, alive[(start+i)%len(alive)])
	}
	r.last = (start + int(limit)) % len(alive)

	sort.Slice(picked, func(i, j int) bool { return picked[i].ID < picked[j].ID })

	return ids(picked), nil
}

type bySamples struct{}

// NewBySamples prefers the clients holding the most training samples.
func NewBySamples() Scheduler {
	return bySamples{}
}

func (bySamples) SelectParticipants(_ uint64, clients []client.Client, limit uint64) ([]string, error) {
	alive, err := online(clients)
	if err != nil {
		return nil, err
	}
	if limit == 0 || uint64(len(alive)) <= limit {
		return ids(alive), nil
	}

	sorted := make([]client.Client, len(alive))
	copy(sorted, alive)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalSamples > sorted[j].TotalSamples
	})
	sorted = sorted[:limit]
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return ids(sorted), nil
}

func online(clients []client.Client) ([]client.Client, error) {
	if len(clients) == 0 {
		return nil, ErrNoClient
	}

	alive := make([]client.Client, 0, len(clients))
	for _, c := range clients {
		if c.Online() {
			alive = append(alive, c)
		}
	}
	if len(alive) == 0 {
		return nil, ErrNoLiveClients
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i].ID < alive[j].ID })

	return alive, nil
}

func ids(clients []client.Client) []string {
	out := make([]string, len(clients))
	for i, c := range clients {
		out[i] = c.ID
	}

	return out
}
