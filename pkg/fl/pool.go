package fl

import "sort"

// Pool collects the updates of a single round, at most one per client.
// It is not safe for concurrent use.
type Pool struct {
	round   uint64
	updates map[string]Update
}

func NewPool(round uint64) *Pool {
	return &Pool{
		round:   round,
		updates: make(map[string]Update),
	}
}

func (p *Pool) Round() uint64 {
	return p.round
}

// Accumulate adds u to the pool, replacing any earlier update from the same
// client. It reports whether an update was replaced.
func (p *Pool) Accumulate(u Update) (bool, error) {
	if u.Round != p.round {
		return false, ErrRoundMismatch
	}
	_, replaced := p.updates[u.ClientID]
	p.updates[u.ClientID] = u

	return replaced, nil
}

func (p *Pool) Len() int {
	return len(p.updates)
}

// Drain returns the pooled updates ordered by client id and empties the pool.
func (p *Pool) Drain() []Update {
	out := make([]Update, 0, len(p.updates))
	for _, u := range p.updates {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClientID < out[j].ClientID
	})
	p.updates = make(map[string]Update)

	return out
}

// Reset empties the pool and binds it to round.
func (p *Pool) Reset(round uint64) {
	p.round = round
	p.updates = make(map[string]Update)
}
